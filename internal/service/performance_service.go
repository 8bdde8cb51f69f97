package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/ticket-settlement/internal/database"
	"github.com/iliyamo/ticket-settlement/internal/model"
	"github.com/iliyamo/ticket-settlement/internal/repository"
)

// SeatSpec describes a seat to create.
type SeatSpec struct {
	Code  string
	Price int64
}

// CreatePerformanceInput describes a performance to create.
type CreatePerformanceInput struct {
	Title    string
	StartsAt time.Time
	Seats    []SeatSpec
}

// PerformanceService manages performances and their seats.
type PerformanceService struct {
	tx           database.Runner
	performances PerformanceRepository
	seats        SeatRepository
	now          func() time.Time
	log          *zap.Logger
}

// NewPerformanceService wires a PerformanceService.
func NewPerformanceService(tx database.Runner, performances PerformanceRepository, seats SeatRepository, opts ...Option) *PerformanceService {
	o := buildOptions(opts)
	return &PerformanceService{tx: tx, performances: performances, seats: seats, now: o.now, log: o.log}
}

// Create stores a performance with all its seats AVAILABLE.
func (s *PerformanceService) Create(ctx context.Context, in CreatePerformanceInput) (*model.Performance, error) {
	p := &model.Performance{Title: in.Title, StartsAt: in.StartsAt.UTC(), CreatedAt: s.now().UTC()}
	for _, spec := range in.Seats {
		seat, err := model.NewSeat(0, spec.Code, spec.Price)
		if err != nil {
			return nil, fmt.Errorf("seat %s: %w", spec.Code, err)
		}
		p.Seats = append(p.Seats, seat)
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.performances.Create(ctx, p); err != nil {
			return err
		}
		for _, seat := range p.Seats {
			seat.PerformanceID = p.ID
		}
		return s.seats.CreateBulk(ctx, p.Seats)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("performance created", zap.Uint64("performance_id", p.ID), zap.Int("seats", len(p.Seats)))
	return p, nil
}

// ListSeats returns the seats of a performance.  It takes no lock and may
// observe a state that is about to change.
func (s *PerformanceService) ListSeats(ctx context.Context, performanceID uint64) ([]*model.Seat, error) {
	if _, err := s.get(ctx, performanceID); err != nil {
		return nil, err
	}
	return s.seats.ListByPerformance(ctx, performanceID)
}

// Delete removes a performance whose seats are all AVAILABLE.
func (s *PerformanceService) Delete(ctx context.Context, performanceID uint64) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.get(ctx, performanceID); err != nil {
			return err
		}
		active, err := s.seats.ExistsNotAvailable(ctx, performanceID)
		if err != nil {
			return err
		}
		if active {
			return ErrPerformanceHasActiveSeats
		}
		return s.performances.Delete(ctx, performanceID)
	})
}

func (s *PerformanceService) get(ctx context.Context, id uint64) (*model.Performance, error) {
	p, err := s.performances.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrPerformanceNotFound
	}
	return p, err
}
