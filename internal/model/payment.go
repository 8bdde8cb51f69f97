package model

import "time"

// PaymentStatus mirrors the verification lifecycle of a pre-payment record.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentCanceled  PaymentStatus = "CANCELED"
)

// Payment is the pre-payment record created before the client talks to the
// processor.  It is the local ground truth the processor's report is
// checked against and is kept forever as an audit trail.
type Payment struct {
	PaymentKey   string
	AccountID    uint64
	SeatID       uint64
	Amount       int64
	Currency     string
	Method       string
	OrderName    string
	Status       PaymentStatus
	RequestIP    string
	VerifyIP     string
	PaidAt       *time.Time
	ReceiptURL   string
	CancelReason string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ReservationKey returns the reservation this payment settles.
func (p *Payment) ReservationKey() ReservationKey {
	return ReservationKey{AccountID: p.AccountID, SeatID: p.SeatID}
}

// Complete records a verified processor payment.
func (p *Payment) Complete(method, receiptURL, verifyIP string, paidAt, now time.Time) error {
	if p.Status != PaymentPending {
		return ErrPaymentNotPending
	}
	p.Status = PaymentCompleted
	if method != "" {
		p.Method = method
	}
	p.ReceiptURL = receiptURL
	p.VerifyIP = verifyIP
	if !paidAt.IsZero() {
		t := paidAt.UTC()
		p.PaidAt = &t
	}
	p.UpdatedAt = now.UTC()
	return nil
}

// Cancel marks the payment canceled.  A canceled payment stays canceled;
// the first reason wins.
func (p *Payment) Cancel(reason string, now time.Time) bool {
	if p.Status == PaymentCanceled {
		return false
	}
	p.Status = PaymentCanceled
	p.CancelReason = reason
	p.UpdatedAt = now.UTC()
	return true
}
