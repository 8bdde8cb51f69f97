package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/ticket-settlement/internal/database"
	"github.com/iliyamo/ticket-settlement/internal/model"
)

// PerformanceRepo persists performances.  Seats are written through
// SeatRepo; Create only stores the performance row.
type PerformanceRepo struct {
	db *sql.DB
}

// NewPerformanceRepo returns a PerformanceRepo bound to db.
func NewPerformanceRepo(db *sql.DB) *PerformanceRepo { return &PerformanceRepo{db: db} }

// Create inserts p and populates its ID.
func (r *PerformanceRepo) Create(ctx context.Context, p *model.Performance) error {
	const q = `INSERT INTO performances (title, starts_at, created_at) VALUES (?, ?, ?)`
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, q, p.Title, p.StartsAt.UTC(), p.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert performance: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	return nil
}

// GetByID loads a performance without its seats.
func (r *PerformanceRepo) GetByID(ctx context.Context, id uint64) (*model.Performance, error) {
	const q = `SELECT id, title, starts_at, created_at FROM performances WHERE id = ?`
	var p model.Performance
	err := database.Conn(ctx, r.db).QueryRowContext(ctx, q, id).Scan(&p.ID, &p.Title, &p.StartsAt, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Delete removes a performance; its seats go with it through the foreign
// key cascade.
func (r *PerformanceRepo) Delete(ctx context.Context, id uint64) error {
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, `DELETE FROM performances WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete performance %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
