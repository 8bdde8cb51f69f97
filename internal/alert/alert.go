// Package alert escalates situations that need a human, such as a charge
// the processor refused to cancel after local verification rejected it.
package alert

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/ticket-settlement/internal/queue"
)

// ManualIntervention describes a payment left in a state the system cannot
// resolve on its own.
type ManualIntervention struct {
	PaymentKey string    `json:"payment_key"`
	AccountID  uint64    `json:"account_id"`
	Reason     string    `json:"reason"`
	Cause      string    `json:"cause"`
	RaisedAt   time.Time `json:"raised_at"`
}

// Notifier raises alerts.
type Notifier interface {
	ManualIntervention(ctx context.Context, a ManualIntervention) error
}

// LogNotifier writes alerts to the error log.
type LogNotifier struct {
	Log *zap.Logger
}

func (n LogNotifier) ManualIntervention(_ context.Context, a ManualIntervention) error {
	n.Log.Error("manual intervention required",
		zap.String("payment_key", a.PaymentKey),
		zap.Uint64("account_id", a.AccountID),
		zap.String("reason", a.Reason),
		zap.String("cause", a.Cause),
		zap.Time("raised_at", a.RaisedAt),
	)
	return nil
}

// QueueNotifier logs the alert and publishes it to the
// payment.manual_intervention queue for the operations tooling.
type QueueNotifier struct {
	publisher queue.Publisher
	log       LogNotifier
}

// NewQueueNotifier returns a QueueNotifier.
func NewQueueNotifier(p queue.Publisher, log *zap.Logger) *QueueNotifier {
	return &QueueNotifier{publisher: p, log: LogNotifier{Log: log}}
}

func (n *QueueNotifier) ManualIntervention(ctx context.Context, a ManualIntervention) error {
	_ = n.log.ManualIntervention(ctx, a)
	body, err := json.Marshal(a)
	if err != nil {
		return err
	}
	if err := n.publisher.Publish(ctx, queue.TopicManualIntervention, uuid.NewString(), body); err != nil {
		n.log.Log.Error("manual intervention alert not published", zap.String("payment_key", a.PaymentKey), zap.Error(err))
		return err
	}
	return nil
}
