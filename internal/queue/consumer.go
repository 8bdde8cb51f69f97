package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Consumer listens to one durable queue and runs Handler for each delivery.
// A delivery whose handler keeps failing after Attempts tries is published
// to the topic's dead-letter queue and acknowledged; if even that fails the
// delivery is requeued so nothing is lost.
type Consumer struct {
	URL      string
	Topic    string
	Handler  Handler
	Attempts int
	Backoff  time.Duration
	Prefetch int
	Log      *zap.Logger
}

// Run connects to the broker and consumes until ctx ends.  Connection
// failures are retried with exponential backoff capped at 30s.
func (c *Consumer) Run(ctx context.Context) error {
	if c.Attempts < 1 {
		c.Attempts = 1
	}
	if c.Prefetch <= 0 {
		c.Prefetch = 50
	}
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			c.Log.Warn("consumer failed to dial broker",
				zap.String("queue", c.Topic), zap.Duration("retry_in", backoff), zap.Error(err))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.Log.Warn("consume loop ended, reconnecting", zap.String("queue", c.Topic), zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(c.Prefetch, 0, false); err != nil {
		c.Log.Warn("set QoS failed", zap.Error(err))
	}
	dlq := DeadLetterTopic(c.Topic)
	for _, name := range []string{c.Topic, dlq} {
		if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			return fmt.Errorf("queue declare %s: %w", name, err)
		}
	}

	msgs, err := ch.Consume(c.Topic, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			c.handle(ctx, ch, dlq, d)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, ch *amqp.Channel, dlq string, d amqp.Delivery) {
	err := Deliver(ctx, c.Handler, d.Body, c.Attempts, c.Backoff)
	if err == nil {
		_ = d.Ack(false)
		return
	}
	c.Log.Error("handler failed, dead-lettering",
		zap.String("queue", c.Topic), zap.String("message_id", d.MessageId), zap.Error(err))

	pub := amqp.Publishing{
		ContentType:  d.ContentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    d.MessageId,
		Timestamp:    time.Now().UTC(),
		Headers:      amqp.Table{"x-error": err.Error(), "x-original-queue": c.Topic},
		Body:         d.Body,
	}
	pubCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if perr := ch.PublishWithContext(pubCtx, "", dlq, false, false, pub); perr != nil {
		c.Log.Error("dead-letter publish failed, requeueing", zap.String("queue", c.Topic), zap.Error(perr))
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
