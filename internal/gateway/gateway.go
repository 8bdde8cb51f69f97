// Package gateway talks to the external payment processor.  Only the two
// calls the settlement core needs are modelled: fetching the processor's
// record of a payment and cancelling it.
package gateway

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrPaymentNotFoundInPG is a 4xx answer from the processor.
	ErrPaymentNotFoundInPG = errors.New("payment not found at processor")
	// ErrPaymentAPIError is a 5xx answer or a transport failure.
	ErrPaymentAPIError = errors.New("payment processor api error")
	// ErrPaymentCancelFailed is any failure of a cancel call.
	ErrPaymentCancelFailed = errors.New("payment cancel failed at processor")
)

// Processor statuses that mean the money was captured.
const (
	StatusDone = "DONE"
	StatusPaid = "PAID"
)

// Payment is the processor's authoritative view of a payment.
type Payment struct {
	PaymentKey string    `json:"paymentKey"`
	OrderID    string    `json:"orderId"`
	Amount     int64     `json:"totalAmount"`
	Status     string    `json:"status"`
	Method     string    `json:"method"`
	PaidAt     time.Time `json:"approvedAt"`
	Receipt    struct {
		URL string `json:"url"`
	} `json:"receipt"`
}

// ReceiptURL returns the receipt link, if any.
func (p *Payment) ReceiptURL() string { return p.Receipt.URL }

// IsCompleted reports whether the processor considers the payment captured.
func (p *Payment) IsCompleted() bool { return IsCompletedStatus(p.Status) }

// IsCompletedStatus reports whether status is one of the captured states,
// ignoring case and surrounding space.
func IsCompletedStatus(status string) bool {
	s := strings.ToUpper(strings.TrimSpace(status))
	return s == StatusDone || s == StatusPaid
}

// Client is the processor contract.  GetPayment is safe to retry;
// CancelPayment is not and implementations must not retry it.
type Client interface {
	GetPayment(ctx context.Context, paymentKey string) (*Payment, error)
	CancelPayment(ctx context.Context, paymentKey, reason string) error
}
