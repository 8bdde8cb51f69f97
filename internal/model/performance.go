package model

import "time"

// Performance is a scheduled event whose seats are sold individually.  It
// owns its seats; Seat.PerformanceID is only the persistence back-reference.
type Performance struct {
	ID        uint64
	Title     string
	StartsAt  time.Time
	Seats     []*Seat
	CreatedAt time.Time
}

// Account is the buyer identity the core needs.  Authentication happens
// before any of the services are reached.
type Account struct {
	ID          uint64
	Email       string
	DisplayName string
	CreatedAt   time.Time
}
