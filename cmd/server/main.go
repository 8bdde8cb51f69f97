// Command server runs the seat reservation and payment settlement API.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/ticket-settlement/internal/alert"
	"github.com/iliyamo/ticket-settlement/internal/config"
	"github.com/iliyamo/ticket-settlement/internal/database"
	"github.com/iliyamo/ticket-settlement/internal/gateway"
	"github.com/iliyamo/ticket-settlement/internal/handler"
	"github.com/iliyamo/ticket-settlement/internal/lock"
	"github.com/iliyamo/ticket-settlement/internal/logger"
	"github.com/iliyamo/ticket-settlement/internal/middleware"
	"github.com/iliyamo/ticket-settlement/internal/model"
	"github.com/iliyamo/ticket-settlement/internal/queue"
	"github.com/iliyamo/ticket-settlement/internal/repository"
	"github.com/iliyamo/ticket-settlement/internal/repository/memory"
	"github.com/iliyamo/ticket-settlement/internal/router"
	"github.com/iliyamo/ticket-settlement/internal/service"
	"github.com/iliyamo/ticket-settlement/internal/worker"
)

// outboxStore is what both the payment service and the relay need.
type outboxStore interface {
	service.OutboxRepository
	worker.OutboxStore
}

type stores struct {
	tx           database.Runner
	accounts     service.AccountRepository
	performances service.PerformanceRepository
	seats        service.SeatRepository
	reservations service.ReservationRepository
	payments     service.PaymentRepository
	outbox       outboxStore
	close        func()
}

func main() {
	cfg := config.Load() // environment config, .env loaded when present
	zl, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// storage: MySQL unless STORAGE_DRIVER=memory
	st, err := openStores(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("storage", zap.Error(err))
	}
	defer st.close()

	// redis backs the distributed lock and the rate limiter
	var rdb *redis.Client
	if cfg.Lock.Driver == "redis" || cfg.RateLimit.Enabled {
		rdb, err = config.NewRedisClient(ctx)
		if err != nil {
			if cfg.Lock.Driver == "redis" {
				zl.Fatal("redis", zap.Error(err))
			}
			zl.Warn("redis unavailable, rate limiting disabled", zap.Error(err))
			rdb = nil
		} else {
			defer rdb.Close()
		}
	}

	var locker lock.Locker = lock.NewMemoryLocker()
	if cfg.Lock.Driver == "redis" {
		locker = lock.NewRedisLocker(rdb, "lock:")
	}
	locks := lock.NewExecutor(locker, zl, cfg.Lock.PollInterval)

	// payment processor client
	var pg gateway.Client
	switch cfg.Gateway.Mode {
	case "fake":
		zl.Warn("using the in-memory payment processor")
		pg = gateway.NewFake()
	default:
		pg = gateway.NewHTTPClient(gateway.HTTPConfig{
			BaseURL:      cfg.Gateway.BaseURL,
			SecretKey:    cfg.Gateway.SecretKey,
			Timeout:      cfg.Gateway.Timeout,
			MaxAttempts:  cfg.Gateway.MaxAttempts,
			RetryBackoff: cfg.Gateway.RetryBackoff,
			RatePerSec:   cfg.Gateway.RatePerSec,
		}, zl)
	}

	// services
	opts := []service.Option{service.WithLogger(zl)}
	reservations := service.NewReservationService(st.tx, locks, st.seats, st.reservations, st.payments,
		service.ReservationConfig{TTL: cfg.Reservation.TTL, LockWait: cfg.Lock.WaitTime, LockLease: cfg.Lock.LeaseTime}, opts...)
	listener := service.NewPaymentEventListener(reservations, zl)
	payments := service.NewPaymentService(st.tx, st.payments, st.reservations, st.seats, st.outbox, listener,
		service.PaymentConfig{VerificationWindow: cfg.Payment.VerificationWindow, Currency: cfg.Payment.Currency}, opts...)
	performances := service.NewPerformanceService(st.tx, st.performances, st.seats, opts...)

	// Event transport: a broker when configured, otherwise in-process
	// delivery with the same retry and dead-letter rules.
	var (
		publisher queue.Publisher
		notifier  alert.Notifier
	)
	switch cfg.Queue.Transport {
	case "direct":
		bus := queue.NewDirect(cfg.Queue.HandlerAttempts, 200*time.Millisecond, zl)
		bus.Subscribe(queue.TopicPaymentCompleted, listener.HandlePaymentCompleted)
		publisher = bus
		notifier = alert.LogNotifier{Log: zl}
	default:
		amqpPub := queue.NewAMQPPublisher(cfg.Queue.URL, zl)
		defer amqpPub.Close()
		publisher = amqpPub
		notifier = alert.NewQueueNotifier(amqpPub, zl)
		consumer := &queue.Consumer{
			URL:      cfg.Queue.URL,
			Topic:    queue.TopicPaymentCompleted,
			Handler:  listener.HandlePaymentCompleted,
			Attempts: cfg.Queue.HandlerAttempts,
			Backoff:  200 * time.Millisecond,
			Prefetch: 16,
			Log:      zl,
		}
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				zl.Error("payment.completed consumer stopped", zap.Error(err))
			}
		}()
	}
	facade := service.NewPaymentFacade(st.accounts, st.payments, payments, pg, notifier, opts...)

	// background workers stop before the stores close
	relay := worker.NewOutboxRelay(st.outbox, publisher,
		worker.RelayConfig{Interval: cfg.Queue.RelayInterval, BatchSize: cfg.Queue.RelayBatchSize}, zl)
	if err := relay.Start(ctx); err != nil {
		zl.Fatal("outbox relay", zap.Error(err))
	}
	defer relay.Stop()

	sweeper := worker.NewExpiryScheduler(st.reservations, reservations,
		worker.ExpiryConfig{Interval: cfg.Scheduler.SweepInterval, BatchSize: cfg.Scheduler.BatchSize}, nil, zl)
	if err := sweeper.Start(ctx); err != nil {
		zl.Fatal("expiry scheduler", zap.Error(err))
	}
	defer sweeper.Stop()

	var limiter echo.MiddlewareFunc
	if rdb != nil {
		limiter = middleware.NewTokenBucket(cfg.RateLimit, rdb, zl)
	}

	// HTTP server
	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(zl))
	router.RegisterRoutes(e)
	router.RegisterPerformances(e, handler.NewPerformanceHandler(performances, zl), cfg.JWTSecret)
	router.RegisterCustomer(e,
		handler.NewReservationHandler(reservations, zl),
		handler.NewPaymentHandler(st.accounts, reservations, payments, facade, zl),
		cfg.JWTSecret, limiter)

	addr := ":" + cfg.Port
	go func() {
		zl.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done() // SIGINT or SIGTERM
	zl.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		zl.Error("http shutdown", zap.Error(err))
	}
}

func openStores(ctx context.Context, cfg config.Config, zl *zap.Logger) (*stores, error) {
	if cfg.StorageDriver == "memory" {
		zl.Warn("using in-memory storage; data is lost on exit")
		m := memory.New()
		seedAccounts(m)
		return &stores{
			tx:           m,
			accounts:     m.Accounts(),
			performances: m.Performances(),
			seats:        m.Seats(),
			reservations: m.Reservations(),
			payments:     m.Payments(),
			outbox:       m.Outbox(),
			close:        func() {},
		}, nil
	}

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &stores{
		tx:           database.NewTxManager(db),
		accounts:     repository.NewAccountRepo(db),
		performances: repository.NewPerformanceRepo(db),
		seats:        repository.NewSeatRepo(db),
		reservations: repository.NewReservationRepo(db),
		payments:     repository.NewPaymentRepo(db),
		outbox:       repository.NewOutboxRepo(db),
		close:        func() { _ = db.Close() },
	}, nil
}

// seedAccounts registers accounts 1..SEED_ACCOUNTS (default 10) so tokens
// minted for local runs resolve.
func seedAccounts(m *memory.Store) {
	n, err := strconv.Atoi(os.Getenv("SEED_ACCOUNTS"))
	if err != nil || n < 1 {
		n = 10
	}
	for id := 1; id <= n; id++ {
		m.AddAccount(model.Account{ID: uint64(id)})
	}
}
