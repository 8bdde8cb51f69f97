package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/ticket-settlement/internal/database"
	"github.com/iliyamo/ticket-settlement/internal/lock"
	"github.com/iliyamo/ticket-settlement/internal/model"
	"github.com/iliyamo/ticket-settlement/internal/repository"
)

// ReservationConfig holds the reservation timings.
type ReservationConfig struct {
	TTL       time.Duration // pending-payment window
	LockWait  time.Duration // 0 fails fast when another request holds the seat
	LockLease time.Duration
}

// ReservationService creates and cancels reservations.  Reserving is the
// only path serialised by the per-seat lock; every other writer relies on
// the version checks of the repositories.
type ReservationService struct {
	tx           database.Runner
	locks        *lock.Executor
	seats        SeatRepository
	reservations ReservationRepository
	payments     PaymentRepository
	cfg          ReservationConfig
	now          func() time.Time
	log          *zap.Logger
}

// NewReservationService wires a ReservationService.
func NewReservationService(
	tx database.Runner,
	locks *lock.Executor,
	seats SeatRepository,
	reservations ReservationRepository,
	payments PaymentRepository,
	cfg ReservationConfig,
	opts ...Option,
) *ReservationService {
	o := buildOptions(opts)
	return &ReservationService{
		tx:           tx,
		locks:        locks,
		seats:        seats,
		reservations: reservations,
		payments:     payments,
		cfg:          cfg,
		now:          o.now,
		log:          o.log,
	}
}

// ReserveSeat moves the seat to RESERVED and records a PENDING_PAYMENT
// reservation for accountID expiring after the configured TTL.  The work
// runs in one transaction under the lock reserveSeat:<seatID>, released
// only after that transaction has finished.
func (s *ReservationService) ReserveSeat(ctx context.Context, accountID, seatID uint64) (*model.Reservation, error) {
	key, err := lock.Key("reserveSeat", seatID)
	if err != nil {
		return nil, err
	}
	var out *model.Reservation
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		return s.locks.Run(ctx, key, s.cfg.LockWait, s.cfg.LockLease, func(ctx context.Context) error {
			seat, err := s.loadSeat(ctx, seatID)
			if err != nil {
				return err
			}
			if err := seat.Reserve(); err != nil {
				return err
			}
			if err := s.seats.Update(ctx, seat); err != nil {
				return fmt.Errorf("reserve seat %d: %w", seatID, err)
			}
			out, err = s.upsertPending(ctx, accountID, seatID)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("seat reserved",
		zap.Uint64("account_id", accountID), zap.Uint64("seat_id", seatID), zap.Time("expires_at", out.ExpiresAt))
	return out, nil
}

// upsertPending creates the reservation row or renews a canceled one.  The
// seat was AVAILABLE under the lock, so any existing row must be canceled.
func (s *ReservationService) upsertPending(ctx context.Context, accountID, seatID uint64) (*model.Reservation, error) {
	fresh := model.NewReservation(accountID, seatID, s.now(), s.cfg.TTL)
	existing, err := s.reservations.Get(ctx, fresh.Key())
	switch {
	case errors.Is(err, repository.ErrNotFound):
		if err := s.reservations.Create(ctx, fresh); err != nil {
			return nil, fmt.Errorf("create reservation: %w", err)
		}
		return fresh, nil
	case err != nil:
		return nil, err
	case existing.Status != model.ReservationCanceled:
		return nil, model.ErrSeatAlreadyReserved
	}
	fresh.Version = existing.Version
	if err := s.reservations.Update(ctx, fresh); err != nil {
		return nil, fmt.Errorf("renew reservation: %w", err)
	}
	return fresh, nil
}

// FindReservation returns the reservation of accountID on seatID.
func (s *ReservationService) FindReservation(ctx context.Context, accountID, seatID uint64) (*model.Reservation, error) {
	r, err := s.reservations.Get(ctx, model.ReservationKey{AccountID: accountID, SeatID: seatID})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrReservationNotFound
	}
	return r, err
}

// CancelReservation cancels the reservation of accountID on seatID.
func (s *ReservationService) CancelReservation(ctx context.Context, accountID, seatID uint64) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		r, err := s.FindReservation(ctx, accountID, seatID)
		if err != nil {
			return err
		}
		return s.CancelReservationEntity(ctx, r)
	})
}

// CancelReservationEntity cancels the reservation snapshot refers to and
// releases its seat.  The stored row is reloaded first: if it is canceled,
// or was canceled and reserved again since the snapshot, nothing happens.
// A confirmed one fails with model.ErrSeatAlreadySold and needs a refund
// instead.  A reservation whose payment already completed fails with
// ErrReservationSettling.
func (s *ReservationService) CancelReservationEntity(ctx context.Context, snapshot *model.Reservation) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if snapshot.Status == model.ReservationCanceled {
			return nil
		}
		// snapshot may be stale, e.g. from an overlapping sweep; act on the stored row.
		r, err := s.FindReservation(ctx, snapshot.AccountID, snapshot.SeatID)
		if err != nil {
			return err
		}
		if r.Status == model.ReservationCanceled {
			return nil
		}
		if snapshot.IsPending() && !r.CreatedAt.Equal(snapshot.CreatedAt) {
			// Canceled and reserved again since the snapshot was taken.
			return nil
		}
		if r.IsPending() {
			settling, err := s.payments.ExistsCompletedForReservation(ctx, r.Key(), r.CreatedAt)
			if err != nil {
				return err
			}
			if settling {
				return ErrReservationSettling
			}
		}
		seat, err := s.loadSeat(ctx, r.SeatID)
		if err != nil {
			return err
		}
		changed, err := r.Cancel(seat)
		if err != nil || !changed {
			return err
		}
		if err := s.seats.Update(ctx, seat); err != nil {
			return fmt.Errorf("release seat %d: %w", seat.ID, err)
		}
		if err := s.reservations.Update(ctx, r); err != nil {
			return fmt.Errorf("cancel reservation: %w", err)
		}
		s.log.Info("reservation canceled", zap.Uint64("account_id", r.AccountID), zap.Uint64("seat_id", r.SeatID))
		return nil
	})
}

// ConfirmReservation finalises a paid reservation and sells its seat.  It
// reports false without error when the reservation was already confirmed,
// so a redelivered completion event does nothing.
func (s *ReservationService) ConfirmReservation(ctx context.Context, accountID, seatID uint64) (bool, error) {
	confirmed := false
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		r, err := s.FindReservation(ctx, accountID, seatID)
		if err != nil {
			return err
		}
		if r.Status == model.ReservationConfirmed {
			return nil
		}
		seat, err := s.loadSeat(ctx, seatID)
		if err != nil {
			return err
		}
		if err := r.Confirm(seat, s.now()); err != nil {
			return err
		}
		if err := s.seats.Update(ctx, seat); err != nil {
			return fmt.Errorf("sell seat %d: %w", seatID, err)
		}
		if err := s.reservations.Update(ctx, r); err != nil {
			return fmt.Errorf("confirm reservation: %w", err)
		}
		confirmed = true
		return nil
	})
	return confirmed, err
}

// RefundReservation cancels a reservation whose payment was refunded and
// returns the seat to sale, even if it was sold.
func (s *ReservationService) RefundReservation(ctx context.Context, accountID, seatID uint64) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		r, err := s.FindReservation(ctx, accountID, seatID)
		if err != nil {
			return err
		}
		seat, err := s.loadSeat(ctx, seatID)
		if err != nil {
			return err
		}
		if !r.Refund(seat) {
			return nil
		}
		if err := s.seats.Update(ctx, seat); err != nil {
			return fmt.Errorf("release seat %d: %w", seatID, err)
		}
		return s.reservations.Update(ctx, r)
	})
}

func (s *ReservationService) loadSeat(ctx context.Context, id uint64) (*model.Seat, error) {
	seat, err := s.seats.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrSeatNotFound
	}
	return seat, err
}
