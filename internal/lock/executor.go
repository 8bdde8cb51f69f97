// Package lock serialises work on a named resource across processes.
//
// The Executor wraps a unit of work with a lease-based lock obtained from a
// Locker.  When the calling context carries an open database transaction the
// lock is held until that transaction has committed or rolled back, so the
// next holder never observes a half-finished write.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/ticket-settlement/internal/database"
)

var (
	// ErrLockAcquisitionFailed means the lock stayed held by someone else for
	// the whole wait time.  The protected operation did not run.
	ErrLockAcquisitionFailed = errors.New("lock acquisition failed")
	// ErrLockInterrupted means the context ended while waiting for the lock.
	ErrLockInterrupted = errors.New("lock wait interrupted")
)

// Locker is the lock provider contract.  Implementations must expire a
// held lock after lease even if Unlock is never called, and must only
// unlock when token still owns the lock.
type Locker interface {
	TryLock(ctx context.Context, key, token string, lease time.Duration) (bool, error)
	Unlock(ctx context.Context, key, token string) (bool, error)
}

// Executor acquires a lock around an operation and guarantees a single
// release.
type Executor struct {
	locker       Locker
	log          *zap.Logger
	pollInterval time.Duration
	newToken     func() string
}

// NewExecutor returns an Executor polling every pollInterval while waiting.
func NewExecutor(locker Locker, log *zap.Logger, pollInterval time.Duration) *Executor {
	if pollInterval <= 0 {
		pollInterval = 50 * time.Millisecond
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{
		locker:       locker,
		log:          log,
		pollInterval: pollInterval,
		newToken:     uuid.NewString,
	}
}

// Run executes op while holding the lock named key.  It waits at most wait
// for the lock (zero means a single attempt) and asks the provider to expire
// the lock after lease.  op runs on the calling goroutine.
//
// op must finish well within lease: once the lease lapses a second caller
// can acquire the lock while op is still running.
func (e *Executor) Run(ctx context.Context, key string, wait, lease time.Duration, op func(ctx context.Context) error) error {
	token := e.newToken()
	if err := e.acquire(ctx, key, token, wait, lease); err != nil {
		return err
	}
	release := e.releaseOnce(key, token)

	if scope, ok := database.ScopeFrom(ctx); ok {
		scope.AfterCompletion(func(bool) { release() })
		return op(ctx)
	}
	defer release()
	return op(ctx)
}

// Do is Run for operations that return a value.
func Do[T any](ctx context.Context, e *Executor, key string, wait, lease time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := e.Run(ctx, key, wait, lease, func(ctx context.Context) error {
		v, err := op(ctx)
		out = v
		return err
	})
	return out, err
}

func (e *Executor) acquire(ctx context.Context, key, token string, wait, lease time.Duration) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %s", ErrLockInterrupted, key)
	}
	deadline := time.Now().Add(wait)
	for {
		ok, err := e.locker.TryLock(ctx, key, token, lease)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %s", ErrLockInterrupted, key)
			}
			return fmt.Errorf("%w: %s: %v", ErrLockAcquisitionFailed, key, err)
		}
		if ok {
			return nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return fmt.Errorf("%w: %s", ErrLockAcquisitionFailed, key)
		}
		sleep := e.pollInterval
		if sleep > remaining {
			sleep = remaining
		}
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %s", ErrLockInterrupted, key)
		case <-timer.C:
		}
	}
}

// releaseOnce unlocks with a fresh context: the caller's context may be
// cancelled by the time a deferred release runs.  Failures are only logged;
// the lease frees a stuck lock.
func (e *Executor) releaseOnce(key, token string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			released, err := e.locker.Unlock(ctx, key, token)
			switch {
			case err != nil:
				e.log.Warn("lock release failed", zap.String("lock_key", key), zap.Error(err))
			case !released:
				e.log.Warn("lock no longer held at release", zap.String("lock_key", key))
			}
		})
	}
}
