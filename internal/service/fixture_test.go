package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/ticket-settlement/internal/alert"
	"github.com/iliyamo/ticket-settlement/internal/gateway"
	"github.com/iliyamo/ticket-settlement/internal/lock"
	"github.com/iliyamo/ticket-settlement/internal/model"
	"github.com/iliyamo/ticket-settlement/internal/repository/memory"
	"github.com/iliyamo/ticket-settlement/internal/service"
	"github.com/iliyamo/ticket-settlement/internal/worker"
)

const (
	buyer   uint64 = 1
	other   uint64 = 2
	ttl            = 10 * time.Minute
	seatFee int64  = 10000
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []alert.ManualIntervention
}

func (n *recordingNotifier) ManualIntervention(_ context.Context, a alert.ManualIntervention) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, a)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts)
}

type fixture struct {
	t            *testing.T
	ctx          context.Context
	store        *memory.Store
	clock        *clock
	pg           *gateway.Fake
	notifier     *recordingNotifier
	reservations *service.ReservationService
	payments     *service.PaymentService
	facade       *service.PaymentFacade
	listener     *service.PaymentEventListener
	performances *service.PerformanceService
	performance  *model.Performance
	seat         *model.Seat
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:        t,
		ctx:      context.Background(),
		store:    memory.New(),
		clock:    &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		pg:       gateway.NewFake(),
		notifier: &recordingNotifier{},
	}
	f.store.AddAccount(model.Account{ID: buyer, Email: "buyer@example.com"})
	f.store.AddAccount(model.Account{ID: other, Email: "other@example.com"})

	opts := []service.Option{service.WithClock(f.clock.Now), service.WithLogger(zap.NewNop())}
	locks := lock.NewExecutor(lock.NewMemoryLocker(), zap.NewNop(), time.Millisecond)

	f.performances = service.NewPerformanceService(f.store, f.store.Performances(), f.store.Seats(), opts...)
	f.reservations = service.NewReservationService(f.store, locks, f.store.Seats(), f.store.Reservations(), f.store.Payments(),
		service.ReservationConfig{TTL: ttl, LockWait: 0, LockLease: 3 * time.Second}, opts...)
	f.listener = service.NewPaymentEventListener(f.reservations, zap.NewNop())
	f.payments = service.NewPaymentService(f.store, f.store.Payments(), f.store.Reservations(), f.store.Seats(), f.store.Outbox(),
		f.listener, service.PaymentConfig{VerificationWindow: 10 * time.Minute, Currency: "KRW"}, opts...)
	f.facade = service.NewPaymentFacade(f.store.Accounts(), f.store.Payments(), f.payments, f.pg, f.notifier, opts...)

	p, err := f.performances.Create(f.ctx, service.CreatePerformanceInput{
		Title:    "Hamlet",
		StartsAt: f.clock.Now().Add(72 * time.Hour),
		Seats:    []service.SeatSpec{{Code: "A-1", Price: seatFee}, {Code: "A-2", Price: seatFee}},
	})
	require.NoError(t, err)
	f.performance = p
	f.seat = p.Seats[0]
	return f
}

func (f *fixture) seatStatus() model.SeatStatus {
	f.t.Helper()
	s, err := f.store.Seats().GetByID(f.ctx, f.seat.ID)
	require.NoError(f.t, err)
	return s.Status
}

func (f *fixture) reservation(account uint64) *model.Reservation {
	f.t.Helper()
	r, err := f.reservations.FindReservation(f.ctx, account, f.seat.ID)
	require.NoError(f.t, err)
	return r
}

func (f *fixture) payment(key string) *model.Payment {
	f.t.Helper()
	p, err := f.store.Payments().GetByKey(f.ctx, key)
	require.NoError(f.t, err)
	return p
}

// reserveAndPrePay reserves the fixture seat for buyer and saves the
// pre-payment.
func (f *fixture) reserveAndPrePay() *model.Payment {
	f.t.Helper()
	r, err := f.reservations.ReserveSeat(f.ctx, buyer, f.seat.ID)
	require.NoError(f.t, err)
	return f.prePay(r)
}

// prePay saves a pre-payment for r.
func (f *fixture) prePay(r *model.Reservation) *model.Payment {
	f.t.Helper()
	acc, err := f.store.Accounts().GetByID(f.ctx, r.AccountID)
	require.NoError(f.t, err)
	p, err := f.payments.SavePrePayment(f.ctx, acc, r, service.PrePaymentRequest{Method: "CARD"}, "", "10.0.0.1")
	require.NoError(f.t, err)
	return p
}

// sweep runs one expiry sweep at the fixture clock.
func (f *fixture) sweep() worker.SweepResult {
	f.t.Helper()
	s := worker.NewExpiryScheduler(f.store.Reservations(), f.reservations,
		worker.ExpiryConfig{Interval: time.Minute}, f.clock.Now, zap.NewNop())
	return s.Sweep(f.ctx)
}

// processorReports registers the processor's view of key.
func (f *fixture) processorReports(key string, amount int64, status string) {
	f.pg.Put(gateway.Payment{PaymentKey: key, Amount: amount, Status: status, Method: "CARD", PaidAt: f.clock.Now()})
}

// drainOutbox delivers pending payment.completed messages to the listener
// and marks them published.
func (f *fixture) drainOutbox() int {
	f.t.Helper()
	msgs, err := f.store.Outbox().FetchPending(f.ctx, 100)
	require.NoError(f.t, err)
	for _, m := range msgs {
		require.NoError(f.t, f.listener.HandlePaymentCompleted(f.ctx, m.Payload))
		require.NoError(f.t, f.store.Outbox().MarkPublished(f.ctx, m.ID, f.clock.Now()))
	}
	return len(msgs)
}
