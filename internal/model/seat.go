// Package model holds the domain entities and their state transitions.
package model

// SeatStatus is the sale state of a seat within a performance.
type SeatStatus string

const (
	SeatAvailable SeatStatus = "AVAILABLE"
	SeatReserved  SeatStatus = "RESERVED"
	SeatSold      SeatStatus = "SOLD"
)

// Seat is a sellable seat of a performance.  Version is compared and
// swapped by the storage layer on every write.
//
// Fields:
//
//	ID            – seats.id
//	PerformanceID – owning performance (seats.performance_id)
//	Code          – seat code unique within the performance, e.g. "A-12"
//	Price         – price in the smallest currency unit, never negative
//	Status        – AVAILABLE, RESERVED or SOLD
//	Version       – optimistic lock counter
type Seat struct {
	ID            uint64
	PerformanceID uint64
	Code          string
	Price         int64
	Status        SeatStatus
	Version       uint32
}

// NewSeat returns an AVAILABLE seat after validating its price.
func NewSeat(performanceID uint64, code string, price int64) (*Seat, error) {
	if price < 0 {
		return nil, ErrInvalidSeatPrice
	}
	return &Seat{PerformanceID: performanceID, Code: code, Price: price, Status: SeatAvailable}, nil
}

// Reserve moves an AVAILABLE seat to RESERVED.
func (s *Seat) Reserve() error {
	if s.Status != SeatAvailable {
		return ErrSeatAlreadyReserved
	}
	s.Status = SeatReserved
	return nil
}

// ConfirmSale moves a RESERVED seat to SOLD.
func (s *Seat) ConfirmSale() error {
	if s.Status != SeatReserved {
		return ErrSeatNotAvailable
	}
	s.Status = SeatSold
	return nil
}

// Cancel releases a RESERVED seat.  A sold seat can only come back through
// Refund.
func (s *Seat) Cancel() error {
	switch s.Status {
	case SeatSold:
		return ErrSeatAlreadySold
	case SeatReserved:
		s.Status = SeatAvailable
	}
	return nil
}

// Refund releases the seat regardless of whether the sale completed.  Only
// the payment-canceled path calls it.
func (s *Seat) Refund() {
	s.Status = SeatAvailable
}

// SetPrice validates and applies a new price.
func (s *Seat) SetPrice(price int64) error {
	if price < 0 {
		return ErrInvalidSeatPrice
	}
	s.Price = price
	return nil
}
