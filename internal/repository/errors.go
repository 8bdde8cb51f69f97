// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow the services and handlers to
// distinguish between different failure scenarios. ErrVersionConflict
// signals that a concurrent writer changed a row between read and write,
// while ErrConflict signals that an insert collided with an existing row.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a lookup yields no rows.
var ErrNotFound = errors.New("not found")

// ErrVersionConflict is returned when a compare-and-swap update matched no
// row because the stored version or status moved on.  Callers retry or
// report; it is never ignored.
var ErrVersionConflict = errors.New("version conflict")

// ErrConflict is returned when a write cannot be performed because of
// conflicting state, such as a duplicate key.  Handlers translate this into
// an HTTP 409 response.
var ErrConflict = errors.New("conflict")

const mysqlDuplicateEntry = 1062

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}
