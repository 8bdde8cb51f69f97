package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/ticket-settlement/internal/alert"
	"github.com/iliyamo/ticket-settlement/internal/gateway"
	"github.com/iliyamo/ticket-settlement/internal/model"
	"github.com/iliyamo/ticket-settlement/internal/repository"
)

// Audit codes for a rejected verification.
const (
	ReasonNotFound        = "PAYMENT_NOT_FOUND"
	ReasonAccountMismatch = "ACCOUNT_MISMATCH"
	ReasonAlreadyHandled  = "ALREADY_PROCESSED"
	ReasonExpired         = "VERIFICATION_EXPIRED"
	ReasonNotCompleted    = "NOT_COMPLETED_AT_PROCESSOR"
	ReasonAmountMismatch  = "AMOUNT_MISMATCH"
	ReasonNotPayable      = "RESERVATION_NOT_PAYABLE"
	ReasonDuplicate       = "DUPLICATE_PAYMENT"
	ReasonInternal        = "INTERNAL_ERROR"
)

// compensationTimeout bounds the processor cancel issued after a rejected
// verification.  It is detached from the request context.
const compensationTimeout = 10 * time.Second

// RefundRequest is a user-initiated refund.
type RefundRequest struct {
	PaymentKey string
	Reason     string
}

// PaymentFacade runs the protocols that span the local database and the
// payment processor.  No local transaction is open while the processor is
// called.
type PaymentFacade struct {
	accounts AccountRepository
	payments PaymentRepository
	service  *PaymentService
	pg       gateway.Client
	notifier alert.Notifier
	now      func() time.Time
	log      *zap.Logger
}

// NewPaymentFacade wires a PaymentFacade.
func NewPaymentFacade(
	accounts AccountRepository,
	payments PaymentRepository,
	service *PaymentService,
	pg gateway.Client,
	notifier alert.Notifier,
	opts ...Option,
) *PaymentFacade {
	o := buildOptions(opts)
	return &PaymentFacade{
		accounts: accounts,
		payments: payments,
		service:  service,
		pg:       pg,
		notifier: notifier,
		now:      o.now,
		log:      o.log,
	}
}

// VerifyPayment fetches the processor's record of paymentKey and approves
// the local payment against it.  When approval fails the charge may
// already be captured, so the facade cancels it at the processor, marks
// the local payment CANCELED and returns the original error.  A failed
// processor cancel raises a manual-intervention alert and is not retried.
// The reservation is left untouched; it stays RESERVED until the user
// cancels or the expiry sweep releases it.
func (f *PaymentFacade) VerifyPayment(ctx context.Context, accountID uint64, paymentKey, clientIP string) (*model.Payment, error) {
	if _, err := f.account(ctx, accountID); err != nil {
		return nil, err
	}
	pgPayment, err := f.pg.GetPayment(ctx, paymentKey)
	if err != nil {
		return nil, fmt.Errorf("fetch processor payment %s: %w", paymentKey, err)
	}
	cmd := VerifyCommand{
		PaymentKey: paymentKey,
		Amount:     pgPayment.Amount,
		Status:     pgPayment.Status,
		Method:     pgPayment.Method,
		PaidAt:     pgPayment.PaidAt,
		ReceiptURL: pgPayment.ReceiptURL(),
	}
	p, err := f.service.VerifyAndApprove(ctx, accountID, cmd, clientIP)
	if err != nil {
		f.compensate(ctx, accountID, paymentKey, err)
		return nil, err
	}
	return p, nil
}

// compensate reverses a charge whose local approval failed.
func (f *PaymentFacade) compensate(ctx context.Context, accountID uint64, paymentKey string, cause error) {
	reason := ClassifyVerificationFailure(cause)
	log := f.log.With(zap.String("payment_key", paymentKey), zap.Uint64("account_id", accountID), zap.String("reason", reason))
	log.Warn("payment verification rejected", zap.Error(cause))

	// Already settled here; cancelling it would reverse a legitimate charge.
	if reason == ReasonAlreadyHandled {
		return
	}
	// Someone else's payment: not ours to cancel, but the owner's charge
	// still needs a human to look at it.
	if reason == ReasonAccountMismatch {
		log.Error("payment presented by another account, not canceled")
		f.escalate(context.WithoutCancel(ctx), alert.ManualIntervention{
			PaymentKey: paymentKey,
			AccountID:  accountID,
			Reason:     reason,
			Cause:      cause.Error(),
			RaisedAt:   f.now().UTC(),
		})
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	if err := f.pg.CancelPayment(ctx, paymentKey, reason); err != nil {
		log.Error("compensating cancel failed", zap.Error(err))
		f.escalate(ctx, alert.ManualIntervention{
			PaymentKey: paymentKey,
			AccountID:  accountID,
			Reason:     reason,
			Cause:      err.Error(),
			RaisedAt:   f.now().UTC(),
		})
		return
	}
	if _, err := f.service.CancelPayment(ctx, paymentKey, reason); err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			log.Warn("processor payment canceled, no local record")
			return
		}
		log.Error("processor payment canceled but local record not updated", zap.Error(err))
		return
	}
	log.Info("compensating cancel completed")
}

// RefundPayment reverses a completed payment at the processor, then cancels
// the payment and its reservation locally.  When the processor refuses
// nothing is recorded locally.
func (f *PaymentFacade) RefundPayment(ctx context.Context, accountID uint64, req RefundRequest) (*model.Payment, error) {
	if _, err := f.account(ctx, accountID); err != nil {
		return nil, err
	}
	p, err := f.payments.GetByAccountAndKey(ctx, accountID, req.PaymentKey)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	if p.Status != model.PaymentCompleted {
		return nil, model.ErrPaymentNotCompleted
	}
	if err := f.pg.CancelPayment(ctx, p.PaymentKey, req.Reason); err != nil {
		return nil, fmt.Errorf("refund %s: %w", p.PaymentKey, err)
	}
	refunded, err := f.service.RefundPayment(ctx, p, req.Reason)
	if err != nil {
		// The processor already returned the money.
		f.escalate(context.WithoutCancel(ctx), alert.ManualIntervention{
			PaymentKey: p.PaymentKey,
			AccountID:  accountID,
			Reason:     "REFUND_NOT_RECORDED",
			Cause:      err.Error(),
			RaisedAt:   f.now().UTC(),
		})
		return nil, err
	}
	return refunded, nil
}

func (f *PaymentFacade) escalate(ctx context.Context, a alert.ManualIntervention) {
	if err := f.notifier.ManualIntervention(ctx, a); err != nil {
		f.log.Error("manual intervention alert failed", zap.String("payment_key", a.PaymentKey), zap.Error(err))
	}
}

func (f *PaymentFacade) account(ctx context.Context, id uint64) (*model.Account, error) {
	a, err := f.accounts.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	return a, err
}

// ClassifyVerificationFailure maps a VerifyAndApprove error to its audit code.
func ClassifyVerificationFailure(err error) string {
	switch {
	case errors.Is(err, ErrPaymentNotFound):
		return ReasonNotFound
	case errors.Is(err, ErrPaymentAccountMismatch):
		return ReasonAccountMismatch
	case errors.Is(err, ErrPaymentAlreadyProcessed):
		return ReasonAlreadyHandled
	case errors.Is(err, ErrExpiredPaymentVerificationTime):
		return ReasonExpired
	case errors.Is(err, ErrPaymentVerificationFailed):
		return ReasonNotCompleted
	case errors.Is(err, ErrPaymentAmountMismatch):
		return ReasonAmountMismatch
	case errors.Is(err, ErrReservationNotPayable):
		return ReasonNotPayable
	case errors.Is(err, ErrReservationAlreadyPaid):
		return ReasonDuplicate
	default:
		return ReasonInternal
	}
}
