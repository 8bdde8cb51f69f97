package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/ticket-settlement/internal/database"
	"github.com/iliyamo/ticket-settlement/internal/model"
)

// SeatRepo provides methods to work with seats in the database.  Every
// method runs on the transaction carried by ctx when there is one.
type SeatRepo struct {
	db *sql.DB
}

// NewSeatRepo constructs a SeatRepo with the given DB handle.
func NewSeatRepo(db *sql.DB) *SeatRepo {
	return &SeatRepo{db: db}
}

const seatColumns = `id, performance_id, code, price, status, version`

// CreateBulk inserts multiple seats in a single statement.  Seat IDs are
// assigned from the first generated ID, which MySQL guarantees to be
// consecutive for a single multi-row insert.
func (r *SeatRepo) CreateBulk(ctx context.Context, seats []*model.Seat) error {
	if len(seats) == 0 {
		return nil
	}
	var b strings.Builder
	b.WriteString(`INSERT INTO seats (performance_id, code, price, status, version) VALUES `)
	args := make([]any, 0, len(seats)*5)
	for i, s := range seats {
		if s.Price < 0 {
			return model.ErrInvalidSeatPrice
		}
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("(?, ?, ?, ?, ?)")
		args = append(args, s.PerformanceID, s.Code, s.Price, string(s.Status), s.Version)
	}
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, b.String(), args...)
	if err != nil {
		if isDuplicate(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert seats: %w", err)
	}
	first, err := res.LastInsertId()
	if err != nil {
		return err
	}
	for i, s := range seats {
		s.ID = uint64(first) + uint64(i)
	}
	return nil
}

// GetByID loads a seat.  It returns ErrNotFound when the seat does not exist.
func (r *SeatRepo) GetByID(ctx context.Context, id uint64) (*model.Seat, error) {
	q := `SELECT ` + seatColumns + ` FROM seats WHERE id = ?`
	s, err := scanSeat(database.Conn(ctx, r.db).QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return s, err
}

// ListByPerformance returns the seats of a performance ordered by code.
func (r *SeatRepo) ListByPerformance(ctx context.Context, performanceID uint64) ([]*model.Seat, error) {
	q := `SELECT ` + seatColumns + ` FROM seats WHERE performance_id = ? ORDER BY code`
	rows, err := database.Conn(ctx, r.db).QueryContext(ctx, q, performanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Seat
	for rows.Next() {
		s, err := scanSeat(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Update writes status and price when the stored version still equals
// s.Version, then bumps s.Version.  A stale version yields
// ErrVersionConflict.
func (r *SeatRepo) Update(ctx context.Context, s *model.Seat) error {
	if s.Price < 0 {
		return model.ErrInvalidSeatPrice
	}
	const q = `UPDATE seats SET status = ?, price = ?, version = version + 1
	           WHERE id = ? AND version = ?`
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, q, string(s.Status), s.Price, s.ID, s.Version)
	if err != nil {
		return fmt.Errorf("update seat %d: %w", s.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrVersionConflict
	}
	s.Version++
	return nil
}

// ExistsNotAvailable reports whether any seat of the performance is
// reserved or sold.
func (r *SeatRepo) ExistsNotAvailable(ctx context.Context, performanceID uint64) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM seats WHERE performance_id = ? AND status <> 'AVAILABLE')`
	var exists bool
	if err := database.Conn(ctx, r.db).QueryRowContext(ctx, q, performanceID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSeat(row rowScanner) (*model.Seat, error) {
	var s model.Seat
	var status string
	if err := row.Scan(&s.ID, &s.PerformanceID, &s.Code, &s.Price, &status, &s.Version); err != nil {
		return nil, err
	}
	s.Status = model.SeatStatus(status)
	return &s, nil
}
