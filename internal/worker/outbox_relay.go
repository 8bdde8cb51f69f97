package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/ticket-settlement/internal/model"
	"github.com/iliyamo/ticket-settlement/internal/queue"
)

// OutboxStore is the relay's view of the outbox table.
type OutboxStore interface {
	FetchPending(ctx context.Context, limit int) ([]*model.OutboxMessage, error)
	MarkPublished(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, cause string) error
}

// RelayConfig controls the relay.
type RelayConfig struct {
	Interval  time.Duration
	BatchSize int
}

// OutboxRelay publishes committed outbox messages.  A message is marked
// published only after the publisher accepted it, so a crash in between
// publishes it again; consumers are idempotent.
type OutboxRelay struct {
	store     OutboxStore
	publisher queue.Publisher
	cfg       RelayConfig
	now       func() time.Time
	log       *zap.Logger
	loop      *loop
}

// NewOutboxRelay returns a relay; call Start to run it.
func NewOutboxRelay(store OutboxStore, publisher queue.Publisher, cfg RelayConfig, log *zap.Logger) *OutboxRelay {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	r := &OutboxRelay{store: store, publisher: publisher, cfg: cfg, now: time.Now, log: log}
	r.loop = &loop{name: "outbox-relay", interval: cfg.Interval, log: log, tick: func(ctx context.Context) { r.Flush(ctx) }}
	return r
}

func (r *OutboxRelay) Start(ctx context.Context) error { return r.loop.start(ctx) }

func (r *OutboxRelay) Stop() { r.loop.stop() }

// Flush publishes one batch and returns how many messages went out.  It
// stops at the first publish failure to keep messages in order.
func (r *OutboxRelay) Flush(ctx context.Context) int {
	msgs, err := r.store.FetchPending(ctx, r.cfg.BatchSize)
	if err != nil {
		r.log.Error("fetch outbox", zap.Error(err))
		return 0
	}
	sent := 0
	for _, m := range msgs {
		if err := r.publisher.Publish(ctx, m.Topic, m.ID, m.Payload); err != nil {
			r.log.Warn("outbox publish failed",
				zap.String("message_id", m.ID), zap.String("topic", m.Topic), zap.Int("attempts", m.Attempts+1), zap.Error(err))
			if merr := r.store.MarkFailed(ctx, m.ID, err.Error()); merr != nil {
				r.log.Error("mark outbox failure", zap.String("message_id", m.ID), zap.Error(merr))
			}
			break
		}
		if err := r.store.MarkPublished(ctx, m.ID, r.now()); err != nil {
			r.log.Error("mark outbox published", zap.String("message_id", m.ID), zap.Error(err))
			break
		}
		sent++
	}
	return sent
}
