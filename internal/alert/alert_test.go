package alert_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/iliyamo/ticket-settlement/internal/alert"
	"github.com/iliyamo/ticket-settlement/internal/queue"
)

type recordingPublisher struct {
	topic string
	body  []byte
	err   error
}

func (p *recordingPublisher) Publish(_ context.Context, topic, _ string, body []byte) error {
	p.topic, p.body = topic, body
	return p.err
}

func TestQueueNotifier_PublishesAndLogs(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	pub := &recordingPublisher{}
	n := alert.NewQueueNotifier(pub, zap.New(core))

	a := alert.ManualIntervention{PaymentKey: "pk", AccountID: 3, Reason: "AMOUNT_MISMATCH", Cause: "timeout", RaisedAt: time.Now().UTC()}
	require.NoError(t, n.ManualIntervention(context.Background(), a))

	assert.Equal(t, queue.TopicManualIntervention, pub.topic)
	var got alert.ManualIntervention
	require.NoError(t, json.Unmarshal(pub.body, &got))
	assert.Equal(t, "pk", got.PaymentKey)
	assert.Equal(t, 1, logs.FilterMessage("manual intervention required").Len())
}

func TestQueueNotifier_ReportsPublishFailure(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	n := alert.NewQueueNotifier(pub, zap.NewNop())
	assert.Error(t, n.ManualIntervention(context.Background(), alert.ManualIntervention{PaymentKey: "pk"}))
}
