package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/ticket-settlement/internal/database"
	"github.com/iliyamo/ticket-settlement/internal/model"
)

// AccountRepo reads buyer accounts.  Accounts are provisioned by the
// identity service; this core never writes them.
type AccountRepo struct {
	db *sql.DB
}

// NewAccountRepo returns an AccountRepo bound to db.
func NewAccountRepo(db *sql.DB) *AccountRepo { return &AccountRepo{db: db} }

// GetByID returns ErrNotFound when the account does not exist.
func (r *AccountRepo) GetByID(ctx context.Context, id uint64) (*model.Account, error) {
	const q = `SELECT id, email, display_name, created_at FROM accounts WHERE id = ?`
	var a model.Account
	err := database.Conn(ctx, r.db).QueryRowContext(ctx, q, id).Scan(&a.ID, &a.Email, &a.DisplayName, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}
