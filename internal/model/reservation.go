package model

import "time"

// ReservationStatus tracks a reservation through payment.
type ReservationStatus string

const (
	ReservationPendingPayment ReservationStatus = "PENDING_PAYMENT"
	ReservationConfirmed      ReservationStatus = "CONFIRMED"
	ReservationCanceled       ReservationStatus = "CANCELED"
)

// ReservationKey is the composite identity of a reservation.  Storage keeps
// at most one row per key.
type ReservationKey struct {
	AccountID uint64
	SeatID    uint64
}

// Reservation records that an account holds a seat while it pays.
//
// Fields:
//
//	AccountID, SeatID – composite primary key
//	Status            – PENDING_PAYMENT, CONFIRMED or CANCELED
//	CreatedAt         – when the seat was reserved
//	ExpiresAt         – CreatedAt + TTL; enforced by the expiry sweep
//	ConfirmedAt       – set once when the payment completes
//	Version           – optimistic lock counter
type Reservation struct {
	AccountID   uint64
	SeatID      uint64
	Status      ReservationStatus
	CreatedAt   time.Time
	ExpiresAt   time.Time
	ConfirmedAt *time.Time
	Version     uint32
}

// NewReservation returns a PENDING_PAYMENT reservation expiring ttl after now.
func NewReservation(accountID, seatID uint64, now time.Time, ttl time.Duration) *Reservation {
	now = now.UTC()
	return &Reservation{
		AccountID: accountID,
		SeatID:    seatID,
		Status:    ReservationPendingPayment,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// Key returns the composite identity.
func (r *Reservation) Key() ReservationKey {
	return ReservationKey{AccountID: r.AccountID, SeatID: r.SeatID}
}

// IsPending reports whether the reservation still awaits payment.
func (r *Reservation) IsPending() bool { return r.Status == ReservationPendingPayment }

// IsExpired reports whether a pending reservation passed its deadline.
func (r *Reservation) IsExpired(now time.Time) bool {
	return r.IsPending() && r.ExpiresAt.Before(now)
}

// Confirm finalises a pending reservation and sells the seat.
func (r *Reservation) Confirm(seat *Seat, now time.Time) error {
	if !r.IsPending() {
		return ErrReservationNotPending
	}
	if err := seat.ConfirmSale(); err != nil {
		return err
	}
	t := now.UTC()
	r.Status = ReservationConfirmed
	r.ConfirmedAt = &t
	return nil
}

// Cancel releases a pending reservation and its seat.  Cancelling a
// canceled reservation does nothing so that overlapping sweeps are harmless;
// a confirmed reservation has a sold seat and must go through Refund.
// The returned bool reports whether anything changed.
func (r *Reservation) Cancel(seat *Seat) (bool, error) {
	switch r.Status {
	case ReservationCanceled:
		return false, nil
	case ReservationConfirmed:
		return false, ErrSeatAlreadySold
	}
	if err := seat.Cancel(); err != nil {
		return false, err
	}
	r.Status = ReservationCanceled
	return true, nil
}

// Refund cancels the reservation after its payment was refunded at the
// processor, returning even a sold seat to sale.
func (r *Reservation) Refund(seat *Seat) bool {
	if r.Status == ReservationCanceled {
		return false
	}
	seat.Refund()
	r.Status = ReservationCanceled
	return true
}
