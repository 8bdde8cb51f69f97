// Package worker runs the background jobs: the reservation expiry sweep
// and the outbox relay.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// loop calls tick every interval on its own goroutine until stopped.
type loop struct {
	name     string
	interval time.Duration
	tick     func(ctx context.Context)
	log      *zap.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func (l *loop) start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return fmt.Errorf("%s already running", l.name)
	}
	if l.interval <= 0 {
		return fmt.Errorf("%s: interval must be positive", l.name)
	}
	l.running = true
	l.stopCh = make(chan struct{})
	l.log.Info("starting worker", zap.String("worker", l.name), zap.Duration("interval", l.interval))

	l.wg.Add(1)
	go l.run(ctx, l.stopCh)
	return nil
}

func (l *loop) stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	close(l.stopCh)
	l.mu.Unlock()

	l.wg.Wait()
	l.log.Info("worker stopped", zap.String("worker", l.name))
}

func (l *loop) run(ctx context.Context, stop <-chan struct{}) {
	defer l.wg.Done()
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}
