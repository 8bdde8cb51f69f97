package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/ticket-settlement/internal/model"
	"github.com/iliyamo/ticket-settlement/internal/service"
)

// ExpiredFinder lists reservations past their deadline.
type ExpiredFinder interface {
	FindByStatusAndExpiresBefore(ctx context.Context, status model.ReservationStatus, t time.Time, limit int) ([]*model.Reservation, error)
}

// ReservationCanceler cancels one reservation in its own transaction.
type ReservationCanceler interface {
	CancelReservationEntity(ctx context.Context, r *model.Reservation) error
}

// ExpiryConfig controls the sweep.
type ExpiryConfig struct {
	Interval  time.Duration
	BatchSize int
}

// SweepResult counts what one sweep did.
type SweepResult struct {
	Found    int
	Canceled int
	Skipped  int
	Failed   int
}

// ExpiryScheduler cancels PENDING_PAYMENT reservations whose deadline has
// passed and returns their seats to sale.  It takes no lock: overlapping
// sweeps are harmless because cancelling a canceled reservation does
// nothing and conflicting writers are caught by version checks.
type ExpiryScheduler struct {
	finder   ExpiredFinder
	canceler ReservationCanceler
	cfg      ExpiryConfig
	now      func() time.Time
	log      *zap.Logger
	loop     *loop
}

// NewExpiryScheduler returns a scheduler; call Start to run it.
func NewExpiryScheduler(finder ExpiredFinder, canceler ReservationCanceler, cfg ExpiryConfig, now func() time.Time, log *zap.Logger) *ExpiryScheduler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if now == nil {
		now = time.Now
	}
	s := &ExpiryScheduler{finder: finder, canceler: canceler, cfg: cfg, now: now, log: log}
	s.loop = &loop{name: "expiry-scheduler", interval: cfg.Interval, log: log, tick: func(ctx context.Context) { s.Sweep(ctx) }}
	return s
}

// Start runs Sweep every interval until Stop or ctx ends.
func (s *ExpiryScheduler) Start(ctx context.Context) error { return s.loop.start(ctx) }

// Stop waits for the running sweep to finish.
func (s *ExpiryScheduler) Stop() { s.loop.stop() }

// Sweep cancels one batch of expired reservations.  A failure on one
// reservation is logged and the sweep moves on.
func (s *ExpiryScheduler) Sweep(ctx context.Context) SweepResult {
	var res SweepResult
	expired, err := s.finder.FindByStatusAndExpiresBefore(ctx, model.ReservationPendingPayment, s.now().UTC(), s.cfg.BatchSize)
	if err != nil {
		s.log.Error("find expired reservations", zap.Error(err))
		return res
	}
	res.Found = len(expired)
	for _, r := range expired {
		if ctx.Err() != nil {
			break
		}
		err := s.canceler.CancelReservationEntity(ctx, r)
		switch {
		case err == nil:
			res.Canceled++
		case errors.Is(err, service.ErrReservationSettling):
			res.Skipped++
			s.log.Debug("expired reservation has a completed payment, skipping",
				zap.Uint64("account_id", r.AccountID), zap.Uint64("seat_id", r.SeatID))
		default:
			res.Failed++
			s.log.Error("expire reservation failed",
				zap.Uint64("account_id", r.AccountID), zap.Uint64("seat_id", r.SeatID), zap.Error(err))
		}
	}
	if res.Found > 0 {
		s.log.Info("expiry sweep finished",
			zap.Int("found", res.Found), zap.Int("canceled", res.Canceled),
			zap.Int("skipped", res.Skipped), zap.Int("failed", res.Failed))
	}
	return res
}
