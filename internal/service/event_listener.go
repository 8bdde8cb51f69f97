package service

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/iliyamo/ticket-settlement/internal/queue"
)

// PaymentEventListener finalises reservations when payments settle.
type PaymentEventListener struct {
	reservations *ReservationService
	log          *zap.Logger
}

// NewPaymentEventListener returns a listener driving reservations.
func NewPaymentEventListener(reservations *ReservationService, log *zap.Logger) *PaymentEventListener {
	if log == nil {
		log = zap.NewNop()
	}
	return &PaymentEventListener{reservations: reservations, log: log}
}

// OnPaymentCompleted confirms the reservation and sells the seat.  A
// redelivered event for a confirmed reservation does nothing.
func (l *PaymentEventListener) OnPaymentCompleted(ctx context.Context, ev queue.PaymentCompletedEvent) error {
	changed, err := l.reservations.ConfirmReservation(ctx, ev.AccountID, ev.SeatID)
	if err != nil {
		l.log.Error("confirm reservation failed",
			zap.String("payment_key", ev.PaymentKey), zap.Uint64("seat_id", ev.SeatID), zap.Error(err))
		return err
	}
	if changed {
		l.log.Info("reservation confirmed", zap.String("payment_key", ev.PaymentKey), zap.Uint64("seat_id", ev.SeatID))
	} else {
		l.log.Debug("duplicate payment.completed ignored", zap.String("payment_key", ev.PaymentKey))
	}
	return nil
}

// HandlePaymentCompleted is the queue.Handler for payment.completed.
func (l *PaymentEventListener) HandlePaymentCompleted(ctx context.Context, body []byte) error {
	var ev queue.PaymentCompletedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal payment.completed: %w", err)
	}
	return l.OnPaymentCompleted(ctx, ev)
}

// OnPaymentCanceled releases the reservation of a refunded payment.  It
// runs inside the refunding transaction.
func (l *PaymentEventListener) OnPaymentCanceled(ctx context.Context, ev queue.PaymentCanceledEvent) error {
	return l.reservations.RefundReservation(ctx, ev.AccountID, ev.SeatID)
}
