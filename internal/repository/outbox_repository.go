package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/iliyamo/ticket-settlement/internal/database"
	"github.com/iliyamo/ticket-settlement/internal/model"
)

// OutboxRepo stores events that must be published after the transaction
// that raised them commits.  Insert runs on the caller's transaction; the
// relay reads and marks rows outside of it.
type OutboxRepo struct {
	db *sql.DB
}

// NewOutboxRepo returns an OutboxRepo bound to db.
func NewOutboxRepo(db *sql.DB) *OutboxRepo { return &OutboxRepo{db: db} }

// Insert writes m.  The ID is generated by the caller.
func (r *OutboxRepo) Insert(ctx context.Context, m *model.OutboxMessage) error {
	const q = `INSERT INTO outbox (id, topic, aggregate_key, payload, attempts, created_at) VALUES (?, ?, ?, ?, 0, ?)`
	_, err := database.Conn(ctx, r.db).ExecContext(ctx, q, m.ID, m.Topic, m.AggregateKey, []byte(m.Payload), m.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert outbox message: %w", err)
	}
	return nil
}

// FetchPending returns up to limit unpublished messages, oldest first.
func (r *OutboxRepo) FetchPending(ctx context.Context, limit int) ([]*model.OutboxMessage, error) {
	const q = `SELECT id, topic, aggregate_key, payload, attempts, last_error, created_at
	           FROM outbox
	           WHERE published_at IS NULL
	           ORDER BY created_at
	           LIMIT ?`
	rows, err := database.Conn(ctx, r.db).QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.OutboxMessage
	for rows.Next() {
		var m model.OutboxMessage
		var payload []byte
		var lastErr sql.NullString
		if err := rows.Scan(&m.ID, &m.Topic, &m.AggregateKey, &payload, &m.Attempts, &lastErr, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Payload = payload
		m.LastError = lastErr.String
		out = append(out, &m)
	}
	return out, rows.Err()
}

// MarkPublished records a successful hand-off to the broker.
func (r *OutboxRepo) MarkPublished(ctx context.Context, id string, at time.Time) error {
	const q = `UPDATE outbox SET published_at = ?, attempts = attempts + 1, last_error = NULL WHERE id = ?`
	_, err := database.Conn(ctx, r.db).ExecContext(ctx, q, at.UTC(), id)
	return err
}

// MarkFailed records a failed publish attempt; the row stays pending.
func (r *OutboxRepo) MarkFailed(ctx context.Context, id string, cause string) error {
	if len(cause) > 512 {
		cause = cause[:512]
	}
	const q = `UPDATE outbox SET attempts = attempts + 1, last_error = ? WHERE id = ?`
	_, err := database.Conn(ctx, r.db).ExecContext(ctx, q, cause, id)
	return err
}
