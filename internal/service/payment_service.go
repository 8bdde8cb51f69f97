package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/ticket-settlement/internal/database"
	"github.com/iliyamo/ticket-settlement/internal/gateway"
	"github.com/iliyamo/ticket-settlement/internal/model"
	"github.com/iliyamo/ticket-settlement/internal/queue"
	"github.com/iliyamo/ticket-settlement/internal/repository"
)

// PaymentConfig holds the payment rules.
type PaymentConfig struct {
	VerificationWindow time.Duration // max age of a pre-payment at verification
	Currency           string
}

// PrePaymentRequest carries what the client chose before paying.
type PrePaymentRequest struct {
	Method   string
	Currency string
}

// VerifyCommand is the processor's report of a payment, checked against
// the local pre-payment record.
type VerifyCommand struct {
	PaymentKey string
	Amount     int64
	Status     string
	Method     string
	PaidAt     time.Time
	ReceiptURL string
}

// CanceledHandler reacts to a refund inside the refunding transaction.
type CanceledHandler interface {
	OnPaymentCanceled(ctx context.Context, ev queue.PaymentCanceledEvent) error
}

// PaymentService owns the pre-payment records.
type PaymentService struct {
	tx           database.Runner
	payments     PaymentRepository
	reservations ReservationRepository
	seats        SeatRepository
	outbox       OutboxRepository
	canceled     CanceledHandler
	cfg          PaymentConfig
	now          func() time.Time
	log          *zap.Logger
	newKey       func() string
}

// NewPaymentService wires a PaymentService.
func NewPaymentService(
	tx database.Runner,
	payments PaymentRepository,
	reservations ReservationRepository,
	seats SeatRepository,
	outbox OutboxRepository,
	canceled CanceledHandler,
	cfg PaymentConfig,
	opts ...Option,
) *PaymentService {
	o := buildOptions(opts)
	return &PaymentService{
		tx:           tx,
		payments:     payments,
		reservations: reservations,
		seats:        seats,
		outbox:       outbox,
		canceled:     canceled,
		cfg:          cfg,
		now:          o.now,
		log:          o.log,
		newKey:       uuid.NewString,
	}
}

// SavePrePayment records the payment the client is about to make for
// reservation.  The amount is the seat price at this moment and becomes
// the value the processor's report must match.
func (s *PaymentService) SavePrePayment(
	ctx context.Context,
	account *model.Account,
	reservation *model.Reservation,
	req PrePaymentRequest,
	description, clientIP string,
) (*model.Payment, error) {
	if reservation.AccountID != account.ID {
		return nil, ErrPaymentAccountMismatch
	}
	var out *model.Payment
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.reservations.Get(ctx, reservation.Key())
		if errors.Is(err, repository.ErrNotFound) {
			return ErrReservationNotFound
		}
		if err != nil {
			return err
		}
		now := s.now().UTC()
		if !current.IsPending() || current.IsExpired(now) {
			return model.ErrReservationNotPending
		}
		seat, err := s.seats.GetByID(ctx, current.SeatID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSeatNotFound
		}
		if err != nil {
			return err
		}
		currency := req.Currency
		if currency == "" {
			currency = s.cfg.Currency
		}
		if description == "" {
			description = "seat " + seat.Code
		}
		p := &model.Payment{
			PaymentKey: s.newKey(),
			AccountID:  account.ID,
			SeatID:     seat.ID,
			Amount:     seat.Price,
			Currency:   currency,
			Method:     req.Method,
			OrderName:  description,
			Status:     model.PaymentPending,
			RequestIP:  clientIP,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.payments.Create(ctx, p); err != nil {
			return fmt.Errorf("save pre-payment: %w", err)
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("pre-payment saved",
		zap.String("payment_key", out.PaymentKey), zap.Uint64("account_id", out.AccountID), zap.Int64("amount", out.Amount))
	return out, nil
}

// VerifyAndApprove checks the processor's report against the pre-payment
// record.  The checks run in this order: the key is known, it belongs to
// accountID, it is still PENDING, the verification window has not passed,
// the processor reports a captured payment and the amounts are equal.  The
// linked reservation must then still await payment and have no other
// completed payment; otherwise ErrReservationNotPayable or
// ErrReservationAlreadyPaid is returned and the caller compensates.  On
// success the payment becomes COMPLETED and a payment.completed message is
// written to the outbox in the same transaction.
func (s *PaymentService) VerifyAndApprove(ctx context.Context, accountID uint64, cmd VerifyCommand, clientIP string) (*model.Payment, error) {
	var out *model.Payment
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		p, err := s.payments.GetByKey(ctx, cmd.PaymentKey)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrPaymentNotFound
		}
		if err != nil {
			return err
		}
		now := s.now().UTC()
		switch {
		case p.AccountID != accountID:
			return ErrPaymentAccountMismatch
		case p.Status != model.PaymentPending:
			return ErrPaymentAlreadyProcessed
		case now.Sub(p.CreatedAt) > s.cfg.VerificationWindow:
			return ErrExpiredPaymentVerificationTime
		case !gateway.IsCompletedStatus(cmd.Status):
			return fmt.Errorf("%w: processor status %q", ErrPaymentVerificationFailed, cmd.Status)
		case cmd.Amount != p.Amount:
			return fmt.Errorf("%w: expected %d, processor reported %d", ErrPaymentAmountMismatch, p.Amount, cmd.Amount)
		}

		// The reservation must still be the one this payment was made for,
		// and nothing else may have paid for it.
		r, err := s.reservations.Get(ctx, p.ReservationKey())
		if errors.Is(err, repository.ErrNotFound) {
			return ErrReservationNotPayable
		}
		if err != nil {
			return err
		}
		if !r.IsPending() || p.CreatedAt.Before(r.CreatedAt) {
			return fmt.Errorf("%w: reservation is %s", ErrReservationNotPayable, r.Status)
		}
		paid, err := s.payments.ExistsCompletedForReservation(ctx, r.Key(), r.CreatedAt)
		if err != nil {
			return err
		}
		if paid {
			return ErrReservationAlreadyPaid
		}
		// Bumping the version makes a concurrent cancel of the same row fail.
		if err := s.reservations.Update(ctx, r); err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				return ErrReservationNotPayable
			}
			return err
		}

		if err := p.Complete(cmd.Method, cmd.ReceiptURL, clientIP, cmd.PaidAt, now); err != nil {
			return ErrPaymentAlreadyProcessed
		}
		if err := s.payments.Update(ctx, p, model.PaymentPending); err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				return ErrPaymentAlreadyProcessed
			}
			return err
		}
		msg, err := newOutboxMessage(queue.TopicPaymentCompleted, p.PaymentKey, queue.PaymentCompletedEvent{
			PaymentKey:  p.PaymentKey,
			AccountID:   p.AccountID,
			SeatID:      p.SeatID,
			Amount:      p.Amount,
			CompletedAt: now,
		}, now)
		if err != nil {
			return err
		}
		if err := s.outbox.Insert(ctx, msg); err != nil {
			return fmt.Errorf("enqueue payment.completed: %w", err)
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("payment approved", zap.String("payment_key", out.PaymentKey), zap.Int64("amount", out.Amount))
	return out, nil
}

// CancelPayment marks the payment CANCELED.  An already canceled payment
// is returned unchanged.
func (s *PaymentService) CancelPayment(ctx context.Context, paymentKey, reason string) (*model.Payment, error) {
	var out *model.Payment
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		p, err := s.payments.GetByKey(ctx, paymentKey)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrPaymentNotFound
		}
		if err != nil {
			return err
		}
		from := p.Status
		if p.Cancel(reason, s.now()) {
			if err := s.payments.Update(ctx, p, from); err != nil {
				return fmt.Errorf("cancel payment: %w", err)
			}
		}
		out = p
		return nil
	})
	return out, err
}

// RefundPayment cancels a completed payment whose charge the processor has
// already reversed, and dispatches payment.canceled in the same
// transaction so the reservation and seat are released atomically.
func (s *PaymentService) RefundPayment(ctx context.Context, payment *model.Payment, reason string) (*model.Payment, error) {
	var out *model.Payment
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		p, err := s.payments.GetByKey(ctx, payment.PaymentKey)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrPaymentNotFound
		}
		if err != nil {
			return err
		}
		from := p.Status
		now := s.now().UTC()
		if !p.Cancel(reason, now) {
			return ErrPaymentAlreadyProcessed
		}
		if err := s.payments.Update(ctx, p, from); err != nil {
			return fmt.Errorf("refund payment: %w", err)
		}
		ev := queue.PaymentCanceledEvent{
			PaymentKey: p.PaymentKey,
			AccountID:  p.AccountID,
			SeatID:     p.SeatID,
			Reason:     reason,
			CanceledAt: now,
		}
		if err := s.canceled.OnPaymentCanceled(ctx, ev); err != nil {
			return fmt.Errorf("handle payment.canceled: %w", err)
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("payment refunded", zap.String("payment_key", out.PaymentKey), zap.String("reason", reason))
	return out, nil
}

func newOutboxMessage(topic, aggregateKey string, event any, now time.Time) (*model.OutboxMessage, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", topic, err)
	}
	return &model.OutboxMessage{
		ID:           uuid.NewString(),
		Topic:        topic,
		AggregateKey: aggregateKey,
		Payload:      payload,
		CreatedAt:    now,
	}, nil
}
