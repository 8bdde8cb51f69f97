package service

import "errors"

// Lookup misses.
var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrSeatNotFound        = errors.New("seat not found")
	ErrPerformanceNotFound = errors.New("performance not found")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrPaymentNotFound     = errors.New("payment not found")
)

// Reconciliation failures.  Each is distinguishable for audit and for the
// reason sent with a compensating cancel.
var (
	ErrExpiredPaymentVerificationTime = errors.New("payment verification window expired")
	ErrPaymentVerificationFailed      = errors.New("payment not completed at processor")
	ErrPaymentAmountMismatch          = errors.New("payment amount mismatch")
	ErrPaymentAccountMismatch         = errors.New("payment belongs to another account")
	ErrPaymentAlreadyProcessed        = errors.New("payment already processed")
	// ErrReservationNotPayable means the reservation behind the payment was
	// canceled, confirmed or renewed before the processor report arrived.
	ErrReservationNotPayable = errors.New("reservation no longer awaits payment")
	// ErrReservationAlreadyPaid means another payment already completed for
	// the same reservation.
	ErrReservationAlreadyPaid = errors.New("reservation already paid by another payment")
)

var (
	// ErrReservationSettling means a completed payment for the reservation
	// is waiting for its confirmation event; it cannot be cancelled.
	ErrReservationSettling = errors.New("reservation has a completed payment awaiting confirmation")
	// ErrPerformanceHasActiveSeats blocks deleting a performance while any
	// seat is reserved or sold.
	ErrPerformanceHasActiveSeats = errors.New("performance has reserved or sold seats")
)
