package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/ticket-settlement/internal/database"
	"github.com/iliyamo/ticket-settlement/internal/model"
)

// ReservationRepo persists reservations keyed by (account_id, seat_id).  At
// most one row exists per key; a canceled row is renewed in place by Update
// when the same account reserves the seat again.  All timestamps are stored
// in UTC.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

const reservationColumns = `account_id, seat_id, status, created_at, expires_at, confirmed_at, version`

// Create inserts a new reservation.  A row with the same key yields
// ErrConflict.
func (r *ReservationRepo) Create(ctx context.Context, res *model.Reservation) error {
	const q = `INSERT INTO reservations (account_id, seat_id, status, created_at, expires_at, confirmed_at, version)
	           VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := database.Conn(ctx, r.db).ExecContext(ctx, q,
		res.AccountID, res.SeatID, string(res.Status),
		res.CreatedAt.UTC(), res.ExpiresAt.UTC(), nullTime(res.ConfirmedAt), res.Version,
	)
	if err != nil {
		if isDuplicate(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert reservation: %w", err)
	}
	return nil
}

// Get loads the reservation for key, or ErrNotFound.
func (r *ReservationRepo) Get(ctx context.Context, key model.ReservationKey) (*model.Reservation, error) {
	q := `SELECT ` + reservationColumns + ` FROM reservations WHERE account_id = ? AND seat_id = ?`
	res, err := scanReservation(database.Conn(ctx, r.db).QueryRowContext(ctx, q, key.AccountID, key.SeatID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return res, err
}

// Update writes every mutable column when the stored version still equals
// res.Version, then bumps res.Version.
func (r *ReservationRepo) Update(ctx context.Context, res *model.Reservation) error {
	const q = `UPDATE reservations
	           SET status = ?, created_at = ?, expires_at = ?, confirmed_at = ?, version = version + 1
	           WHERE account_id = ? AND seat_id = ? AND version = ?`
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, q,
		string(res.Status), res.CreatedAt.UTC(), res.ExpiresAt.UTC(), nullTime(res.ConfirmedAt),
		res.AccountID, res.SeatID, res.Version,
	)
	if err != nil {
		return fmt.Errorf("update reservation: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrVersionConflict
	}
	res.Version++
	return nil
}

// FindByStatusAndExpiresBefore returns up to limit reservations in status
// whose deadline is strictly before t, oldest first.
func (r *ReservationRepo) FindByStatusAndExpiresBefore(ctx context.Context, status model.ReservationStatus, t time.Time, limit int) ([]*model.Reservation, error) {
	q := `SELECT ` + reservationColumns + ` FROM reservations
	      WHERE status = ? AND expires_at < ?
	      ORDER BY expires_at
	      LIMIT ?`
	rows, err := database.Conn(ctx, r.db).QueryContext(ctx, q, string(status), t.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func scanReservation(row rowScanner) (*model.Reservation, error) {
	var res model.Reservation
	var status string
	var confirmed sql.NullTime
	if err := row.Scan(&res.AccountID, &res.SeatID, &status, &res.CreatedAt, &res.ExpiresAt, &confirmed, &res.Version); err != nil {
		return nil, err
	}
	res.Status = model.ReservationStatus(status)
	if confirmed.Valid {
		t := confirmed.Time.UTC()
		res.ConfirmedAt = &t
	}
	return &res, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
