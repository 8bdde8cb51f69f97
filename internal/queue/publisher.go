package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Publisher hands a message to the broker.  id is the stable message id
// consumers may use for de-duplication.
type Publisher interface {
	Publish(ctx context.Context, topic, id string, body []byte) error
}

// AMQPPublisher publishes persistent JSON messages to durable queues through
// the default exchange.  The connection is opened lazily and reopened after
// a failure.
type AMQPPublisher struct {
	url string
	log *zap.Logger

	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	declared map[string]bool
}

// NewAMQPPublisher returns a publisher for the broker at url.
func NewAMQPPublisher(url string, log *zap.Logger) *AMQPPublisher {
	return &AMQPPublisher{url: url, log: log, declared: make(map[string]bool)}
}

// Publish declares the topic queue on first use and publishes body.
func (p *AMQPPublisher) Publish(ctx context.Context, topic, id string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return err
	}
	if !p.declared[topic] {
		// Durable so messages survive broker restarts.
		if _, err := ch.QueueDeclare(topic, true, false, false, false, nil); err != nil {
			p.reset()
			return fmt.Errorf("queue declare %s: %w", topic, err)
		}
		p.declared[topic] = true
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    id,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", topic, false, false, pub); err != nil {
		p.reset()
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Close releases the connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn, p.ch = nil, nil
	return err
}

func (p *AMQPPublisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	if p.conn == nil || p.conn.IsClosed() {
		conn, err := amqp.Dial(p.url)
		if err != nil {
			return nil, fmt.Errorf("dial broker: %w", err)
		}
		p.conn = conn
	}
	ch, err := p.conn.Channel()
	if err != nil {
		p.reset()
		return nil, fmt.Errorf("channel open: %w", err)
	}
	p.ch = ch
	p.declared = make(map[string]bool)
	return ch, nil
}

func (p *AMQPPublisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.ch, p.conn = nil, nil
	p.log.Warn("amqp publisher connection reset")
}

// Handler processes one message body.
type Handler func(ctx context.Context, body []byte) error

// ErrNoHandler is returned by Direct when nothing subscribed to a topic.
var ErrNoHandler = errors.New("no handler subscribed")

// DeadLetter is a message whose handler failed on every attempt.
type DeadLetter struct {
	Topic string
	ID    string
	Body  []byte
	Err   string
}

// Direct delivers messages to in-process handlers on the publishing
// goroutine.  It applies the same bounded retry and dead-lettering as
// Consumer and is used when no broker is configured.
type Direct struct {
	attempts int
	backoff  time.Duration
	log      *zap.Logger

	mu       sync.RWMutex
	handlers map[string]Handler
	dead     []DeadLetter
}

// NewDirect returns a Direct transport trying each handler attempts times.
func NewDirect(attempts int, backoff time.Duration, log *zap.Logger) *Direct {
	if attempts < 1 {
		attempts = 1
	}
	return &Direct{attempts: attempts, backoff: backoff, log: log, handlers: make(map[string]Handler)}
}

// Subscribe registers h for topic, replacing any earlier handler.
func (d *Direct) Subscribe(topic string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[topic] = h
}

// Publish runs the topic handler.  A handler that keeps failing is
// dead-lettered and Publish still succeeds, as it would with a broker.
func (d *Direct) Publish(ctx context.Context, topic, id string, body []byte) error {
	d.mu.RLock()
	h, ok := d.handlers[topic]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoHandler, topic)
	}
	if err := Deliver(ctx, h, body, d.attempts, d.backoff); err != nil {
		d.log.Error("message dead-lettered",
			zap.String("topic", topic), zap.String("message_id", id), zap.Error(err))
		d.mu.Lock()
		d.dead = append(d.dead, DeadLetter{Topic: DeadLetterTopic(topic), ID: id, Body: body, Err: err.Error()})
		d.mu.Unlock()
	}
	return nil
}

// DeadLetters returns a copy of the dead-lettered messages.
func (d *Direct) DeadLetters() []DeadLetter {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]DeadLetter(nil), d.dead...)
}

// Deliver calls h up to attempts times, sleeping backoff between calls,
// and returns the last error.  It stops early when ctx ends.
func Deliver(ctx context.Context, h Handler, body []byte, attempts int, backoff time.Duration) error {
	var err error
	for i := 1; i <= attempts; i++ {
		if err = h(ctx, body); err == nil {
			return nil
		}
		if i == attempts || ctx.Err() != nil {
			break
		}
		if backoff > 0 {
			t := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				t.Stop()
				return err
			case <-t.C:
			}
		}
	}
	return err
}
