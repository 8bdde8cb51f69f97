// Package memory is an in-process implementation of the repositories.  It
// backs local runs without MySQL and the service tests.
//
// Writes made inside WithinTx register undo steps on the transaction scope,
// so a failed unit of work leaves the maps as they were.  There is no
// isolation between concurrent transactions; conflicting writers are caught
// by the same version checks the MySQL repositories apply.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/ticket-settlement/internal/database"
	"github.com/iliyamo/ticket-settlement/internal/model"
	"github.com/iliyamo/ticket-settlement/internal/repository"
)

// Store holds every table.
type Store struct {
	mu sync.Mutex

	accounts     map[uint64]model.Account
	performances map[uint64]model.Performance
	seats        map[uint64]model.Seat
	reservations map[model.ReservationKey]model.Reservation
	payments     map[string]model.Payment
	outbox       map[string]*model.OutboxMessage

	nextPerformance uint64
	nextSeat        uint64
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		accounts:     make(map[uint64]model.Account),
		performances: make(map[uint64]model.Performance),
		seats:        make(map[uint64]model.Seat),
		reservations: make(map[model.ReservationKey]model.Reservation),
		payments:     make(map[string]model.Payment),
		outbox:       make(map[string]*model.OutboxMessage),
	}
}

// WithinTx runs fn with a transaction scope.  Nested calls join the outer
// scope.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := database.ScopeFrom(ctx); ok {
		return fn(ctx)
	}
	scope := database.NewScope(nil)
	committed := false
	defer func() {
		if !committed {
			scope.Finish(false)
		}
	}()
	if err := fn(database.WithScope(ctx, scope)); err != nil {
		return err
	}
	committed = true
	scope.Finish(true)
	return nil
}

// onRollback registers undo with the active scope.  Callers hold s.mu; the
// undo step takes it again when it runs.
func (s *Store) onRollback(ctx context.Context, undo func()) {
	scope, ok := database.ScopeFrom(ctx)
	if !ok {
		return
	}
	scope.OnRollback(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		undo()
	})
}

// AddAccount seeds an account.
func (s *Store) AddAccount(a model.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	s.accounts[a.ID] = a
}

// Accounts returns the account repository view.
func (s *Store) Accounts() *AccountRepo { return &AccountRepo{s: s} }

// Performances returns the performance repository view.
func (s *Store) Performances() *PerformanceRepo { return &PerformanceRepo{s: s} }

// Seats returns the seat repository view.
func (s *Store) Seats() *SeatRepo { return &SeatRepo{s: s} }

// Reservations returns the reservation repository view.
func (s *Store) Reservations() *ReservationRepo { return &ReservationRepo{s: s} }

// Payments returns the payment repository view.
func (s *Store) Payments() *PaymentRepo { return &PaymentRepo{s: s} }

// Outbox returns the outbox repository view.
func (s *Store) Outbox() *OutboxRepo { return &OutboxRepo{s: s} }

// AccountRepo reads accounts.
type AccountRepo struct{ s *Store }

// GetByID returns repository.ErrNotFound for unknown accounts.
func (r *AccountRepo) GetByID(_ context.Context, id uint64) (*model.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &a, nil
}

// PerformanceRepo stores performances.
type PerformanceRepo struct{ s *Store }

func (r *PerformanceRepo) Create(ctx context.Context, p *model.Performance) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.nextPerformance++
	p.ID = r.s.nextPerformance
	row := *p
	row.Seats = nil
	r.s.performances[p.ID] = row
	r.s.onRollback(ctx, func() { delete(r.s.performances, row.ID) })
	return nil
}

func (r *PerformanceRepo) GetByID(_ context.Context, id uint64) (*model.Performance, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.performances[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

// Delete removes the performance and its seats.
func (r *PerformanceRepo) Delete(ctx context.Context, id uint64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.performances[id]
	if !ok {
		return repository.ErrNotFound
	}
	var removed []model.Seat
	for sid, seat := range r.s.seats {
		if seat.PerformanceID == id {
			removed = append(removed, seat)
			delete(r.s.seats, sid)
		}
	}
	delete(r.s.performances, id)
	r.s.onRollback(ctx, func() {
		r.s.performances[id] = p
		for _, seat := range removed {
			r.s.seats[seat.ID] = seat
		}
	})
	return nil
}

// SeatRepo stores seats.
type SeatRepo struct{ s *Store }

func (r *SeatRepo) CreateBulk(ctx context.Context, seats []*model.Seat) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, seat := range seats {
		if seat.Price < 0 {
			return model.ErrInvalidSeatPrice
		}
		for _, existing := range r.s.seats {
			if existing.PerformanceID == seat.PerformanceID && existing.Code == seat.Code {
				return repository.ErrConflict
			}
		}
	}
	for _, seat := range seats {
		r.s.nextSeat++
		seat.ID = r.s.nextSeat
		r.s.seats[seat.ID] = *seat
		id := seat.ID
		r.s.onRollback(ctx, func() { delete(r.s.seats, id) })
	}
	return nil
}

func (r *SeatRepo) GetByID(_ context.Context, id uint64) (*model.Seat, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	seat, ok := r.s.seats[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &seat, nil
}

func (r *SeatRepo) ListByPerformance(_ context.Context, performanceID uint64) ([]*model.Seat, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Seat
	for _, seat := range r.s.seats {
		if seat.PerformanceID == performanceID {
			seat := seat
			out = append(out, &seat)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// Update applies the same version compare-and-swap as the MySQL repository.
func (r *SeatRepo) Update(ctx context.Context, seat *model.Seat) error {
	if seat.Price < 0 {
		return model.ErrInvalidSeatPrice
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	prev, ok := r.s.seats[seat.ID]
	if !ok || prev.Version != seat.Version {
		return repository.ErrVersionConflict
	}
	next := prev
	next.Status = seat.Status
	next.Price = seat.Price
	next.Version++
	r.s.seats[seat.ID] = next
	seat.Version = next.Version
	r.s.onRollback(ctx, func() { r.s.seats[prev.ID] = prev })
	return nil
}

func (r *SeatRepo) ExistsNotAvailable(_ context.Context, performanceID uint64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, seat := range r.s.seats {
		if seat.PerformanceID == performanceID && seat.Status != model.SeatAvailable {
			return true, nil
		}
	}
	return false, nil
}

// ReservationRepo stores reservations.
type ReservationRepo struct{ s *Store }

func (r *ReservationRepo) Create(ctx context.Context, res *model.Reservation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := res.Key()
	if _, ok := r.s.reservations[key]; ok {
		return repository.ErrConflict
	}
	r.s.reservations[key] = *res
	r.s.onRollback(ctx, func() { delete(r.s.reservations, key) })
	return nil
}

func (r *ReservationRepo) Get(_ context.Context, key model.ReservationKey) (*model.Reservation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	res, ok := r.s.reservations[key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &res, nil
}

func (r *ReservationRepo) Update(ctx context.Context, res *model.Reservation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := res.Key()
	prev, ok := r.s.reservations[key]
	if !ok || prev.Version != res.Version {
		return repository.ErrVersionConflict
	}
	next := *res
	next.Version++
	r.s.reservations[key] = next
	res.Version = next.Version
	r.s.onRollback(ctx, func() { r.s.reservations[key] = prev })
	return nil
}

func (r *ReservationRepo) FindByStatusAndExpiresBefore(_ context.Context, status model.ReservationStatus, t time.Time, limit int) ([]*model.Reservation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Reservation
	for _, res := range r.s.reservations {
		if res.Status == status && res.ExpiresAt.Before(t) {
			res := res
			out = append(out, &res)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PaymentRepo stores payments.
type PaymentRepo struct{ s *Store }

func (r *PaymentRepo) Create(ctx context.Context, p *model.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.payments[p.PaymentKey]; ok {
		return repository.ErrConflict
	}
	r.s.payments[p.PaymentKey] = *p
	key := p.PaymentKey
	r.s.onRollback(ctx, func() { delete(r.s.payments, key) })
	return nil
}

func (r *PaymentRepo) GetByKey(_ context.Context, key string) (*model.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payments[key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (r *PaymentRepo) GetByAccountAndKey(ctx context.Context, accountID uint64, key string) (*model.Payment, error) {
	p, err := r.GetByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if p.AccountID != accountID {
		return nil, repository.ErrNotFound
	}
	return p, nil
}

// Update applies p when the stored status is still from.
func (r *PaymentRepo) Update(ctx context.Context, p *model.Payment, from model.PaymentStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	prev, ok := r.s.payments[p.PaymentKey]
	if !ok || prev.Status != from {
		return repository.ErrVersionConflict
	}
	r.s.payments[p.PaymentKey] = *p
	r.s.onRollback(ctx, func() { r.s.payments[prev.PaymentKey] = prev })
	return nil
}

func (r *PaymentRepo) ExistsCompletedForReservation(_ context.Context, key model.ReservationKey, since time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.payments {
		if p.AccountID == key.AccountID && p.SeatID == key.SeatID && p.Status == model.PaymentCompleted && !p.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

// OutboxRepo stores outbox messages.
type OutboxRepo struct{ s *Store }

func (r *OutboxRepo) Insert(ctx context.Context, m *model.OutboxMessage) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.outbox[m.ID]; ok {
		return repository.ErrConflict
	}
	cp := *m
	r.s.outbox[m.ID] = &cp
	id := m.ID
	r.s.onRollback(ctx, func() { delete(r.s.outbox, id) })
	return nil
}

func (r *OutboxRepo) FetchPending(_ context.Context, limit int) ([]*model.OutboxMessage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.OutboxMessage
	for _, m := range r.s.outbox {
		if m.PublishedAt == nil {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *OutboxRepo) MarkPublished(_ context.Context, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.outbox[id]
	if !ok {
		return repository.ErrNotFound
	}
	t := at.UTC()
	m.PublishedAt = &t
	m.Attempts++
	m.LastError = ""
	return nil
}

func (r *OutboxRepo) MarkFailed(_ context.Context, id string, cause string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.outbox[id]
	if !ok {
		return repository.ErrNotFound
	}
	m.Attempts++
	m.LastError = cause
	return nil
}
