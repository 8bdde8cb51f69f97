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

// PaymentRepo persists pre-payment records.  Rows are never deleted.
type PaymentRepo struct {
	db *sql.DB
}

// NewPaymentRepo returns a PaymentRepo bound to db.
func NewPaymentRepo(db *sql.DB) *PaymentRepo { return &PaymentRepo{db: db} }

const paymentColumns = `payment_key, account_id, seat_id, amount, currency, method, order_name, status,
	request_ip, verify_ip, paid_at, receipt_url, cancel_reason, created_at, updated_at`

// Create inserts p.  A duplicate payment key yields ErrConflict.
func (r *PaymentRepo) Create(ctx context.Context, p *model.Payment) error {
	q := `INSERT INTO payments (` + paymentColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := database.Conn(ctx, r.db).ExecContext(ctx, q,
		p.PaymentKey, p.AccountID, p.SeatID, p.Amount, p.Currency, p.Method, p.OrderName, string(p.Status),
		p.RequestIP, nullString(p.VerifyIP), nullTime(p.PaidAt), nullString(p.ReceiptURL), nullString(p.CancelReason),
		p.CreatedAt.UTC(), p.UpdatedAt.UTC(),
	)
	if err != nil {
		if isDuplicate(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// GetByKey loads a payment by its key, or ErrNotFound.
func (r *PaymentRepo) GetByKey(ctx context.Context, key string) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE payment_key = ?`
	return r.one(ctx, q, key)
}

// GetByAccountAndKey loads a payment owned by accountID, or ErrNotFound.
func (r *PaymentRepo) GetByAccountAndKey(ctx context.Context, accountID uint64, key string) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE account_id = ? AND payment_key = ?`
	return r.one(ctx, q, accountID, key)
}

// Update writes the mutable columns of p provided the stored status is still
// from.  Two verifiers racing on one payment therefore cannot both win;
// the loser gets ErrVersionConflict.
func (r *PaymentRepo) Update(ctx context.Context, p *model.Payment, from model.PaymentStatus) error {
	const q = `UPDATE payments
	           SET status = ?, method = ?, verify_ip = ?, paid_at = ?, receipt_url = ?, cancel_reason = ?, updated_at = ?
	           WHERE payment_key = ? AND status = ?`
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, q,
		string(p.Status), p.Method, nullString(p.VerifyIP), nullTime(p.PaidAt), nullString(p.ReceiptURL),
		nullString(p.CancelReason), p.UpdatedAt.UTC(),
		p.PaymentKey, string(from),
	)
	if err != nil {
		return fmt.Errorf("update payment %s: %w", p.PaymentKey, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrVersionConflict
	}
	return nil
}

// ExistsCompletedForReservation reports whether a COMPLETED payment settles
// the reservation identified by key.  Payments created before since belong
// to an earlier reservation on the same key and are ignored.
func (r *PaymentRepo) ExistsCompletedForReservation(ctx context.Context, key model.ReservationKey, since time.Time) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM payments WHERE account_id = ? AND seat_id = ? AND status = 'COMPLETED' AND created_at >= ?)`
	var exists bool
	if err := database.Conn(ctx, r.db).QueryRowContext(ctx, q, key.AccountID, key.SeatID, since.UTC()).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *PaymentRepo) one(ctx context.Context, q string, args ...any) (*model.Payment, error) {
	p, err := scanPayment(database.Conn(ctx, r.db).QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func scanPayment(row rowScanner) (*model.Payment, error) {
	var p model.Payment
	var status string
	var verifyIP, receipt, reason sql.NullString
	var paidAt sql.NullTime
	err := row.Scan(
		&p.PaymentKey, &p.AccountID, &p.SeatID, &p.Amount, &p.Currency, &p.Method, &p.OrderName, &status,
		&p.RequestIP, &verifyIP, &paidAt, &receipt, &reason, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Status = model.PaymentStatus(status)
	p.VerifyIP = verifyIP.String
	p.ReceiptURL = receipt.String
	p.CancelReason = reason.String
	if paidAt.Valid {
		t := paidAt.Time.UTC()
		p.PaidAt = &t
	}
	return &p, nil
}
