package model

import "errors"

// State-machine violations.  They are returned by the transition methods
// and surface to the caller as rejected requests.
var (
	ErrSeatAlreadyReserved   = errors.New("seat already reserved")
	ErrSeatAlreadySold       = errors.New("seat already sold")
	ErrSeatNotAvailable      = errors.New("seat not available for sale")
	ErrInvalidSeatPrice      = errors.New("seat price must not be negative")
	ErrReservationNotPending = errors.New("reservation is not pending payment")
	ErrPaymentNotPending     = errors.New("payment is not pending")
	ErrPaymentNotCompleted   = errors.New("payment is not completed")
)
