// Package queue defines message payloads exchanged over the message broker
// and the transports that carry them.
package queue

import "time"

// Topics.  Each topic maps to one durable queue of the same name.
const (
	TopicPaymentCompleted   = "payment.completed"
	TopicPaymentCanceled    = "payment.canceled"
	TopicManualIntervention = "payment.manual_intervention"
)

// DeadLetterTopic names the queue that receives messages whose handler kept
// failing.
func DeadLetterTopic(topic string) string { return topic + ".dlq" }

// PaymentCompletedEvent is raised when a payment has been verified against
// the processor and committed as COMPLETED.  The consumer confirms the
// reservation and sells the seat.  It may be delivered more than once.
type PaymentCompletedEvent struct {
	PaymentKey  string    `json:"payment_key"`
	AccountID   uint64    `json:"account_id"`
	SeatID      uint64    `json:"seat_id"`
	Amount      int64     `json:"amount"`
	CompletedAt time.Time `json:"completed_at"`
}

// PaymentCanceledEvent is raised when a completed or pending payment was
// refunded.  It is dispatched inside the refunding transaction.
type PaymentCanceledEvent struct {
	PaymentKey string    `json:"payment_key"`
	AccountID  uint64    `json:"account_id"`
	SeatID     uint64    `json:"seat_id"`
	Reason     string    `json:"reason"`
	CanceledAt time.Time `json:"canceled_at"`
}
