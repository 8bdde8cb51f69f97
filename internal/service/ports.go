// Package service holds the reservation and payment use cases.  Storage,
// locking and the payment processor are reached only through the
// interfaces declared here.
package service

import (
	"context"
	"time"

	"github.com/iliyamo/ticket-settlement/internal/model"
)

// The repositories the services depend on.  internal/repository implements
// them on MySQL and internal/repository/memory in process.  Every method
// joins the transaction carried by ctx.

type AccountRepository interface {
	GetByID(ctx context.Context, id uint64) (*model.Account, error)
}

type PerformanceRepository interface {
	Create(ctx context.Context, p *model.Performance) error
	GetByID(ctx context.Context, id uint64) (*model.Performance, error)
	Delete(ctx context.Context, id uint64) error
}

type SeatRepository interface {
	CreateBulk(ctx context.Context, seats []*model.Seat) error
	GetByID(ctx context.Context, id uint64) (*model.Seat, error)
	ListByPerformance(ctx context.Context, performanceID uint64) ([]*model.Seat, error)
	Update(ctx context.Context, seat *model.Seat) error
	ExistsNotAvailable(ctx context.Context, performanceID uint64) (bool, error)
}

type ReservationRepository interface {
	Create(ctx context.Context, r *model.Reservation) error
	Get(ctx context.Context, key model.ReservationKey) (*model.Reservation, error)
	Update(ctx context.Context, r *model.Reservation) error
	FindByStatusAndExpiresBefore(ctx context.Context, status model.ReservationStatus, t time.Time, limit int) ([]*model.Reservation, error)
}

type PaymentRepository interface {
	Create(ctx context.Context, p *model.Payment) error
	GetByKey(ctx context.Context, key string) (*model.Payment, error)
	GetByAccountAndKey(ctx context.Context, accountID uint64, key string) (*model.Payment, error)
	Update(ctx context.Context, p *model.Payment, from model.PaymentStatus) error
	// ExistsCompletedForReservation only counts payments created at or
	// after since, so a payment for an earlier reservation on the same key
	// does not match.
	ExistsCompletedForReservation(ctx context.Context, key model.ReservationKey, since time.Time) (bool, error)
}

type OutboxRepository interface {
	Insert(ctx context.Context, m *model.OutboxMessage) error
}
