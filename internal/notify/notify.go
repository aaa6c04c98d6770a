// Package notify delivers lifecycle events to users on a best-effort basis.
// Notify never blocks the caller and delivery failures are only logged.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/fazamuttaqien/permitting/internal/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Notifier interface {
	Notify(ctx context.Context, recipients []uint64, event domain.Event)
}

// Message is the payload handed to a Publisher.
type Message struct {
	Recipients []uint64     `json:"recipients"`
	Event      domain.Event `json:"event"`
}

type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

var ErrClosed = errors.New("notify: dispatcher closed")

// Dispatcher queues messages on a buffered channel drained by one worker.
// When the buffer is full the message is dropped.
type Dispatcher struct {
	publisher Publisher
	queue     chan Message
	timeout   time.Duration
	log       *zap.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewDispatcher(publisher Publisher, buffer int, log *zap.Logger) *Dispatcher {
	if buffer <= 0 {
		buffer = 1
	}

	d := &Dispatcher{
		publisher: publisher,
		queue:     make(chan Message, buffer),
		timeout:   3 * time.Second,
		log:       log,
		done:      make(chan struct{}),
	}
	go d.run()

	return d
}

// Notify implements Notifier.
func (d *Dispatcher) Notify(_ context.Context, recipients []uint64, event domain.Event) {
	if len(recipients) == 0 {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.log.Warn("Notification dropped, dispatcher closed", zap.String("event_id", event.ID))
		return
	}

	select {
	case d.queue <- Message{Recipients: recipients, Event: event}:
	default:
		d.log.Warn("Notification dropped, queue full",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.Uint64("application_id", event.ApplicationID),
		)
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)

	for msg := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := d.publisher.Publish(ctx, msg)
		cancel()

		if err != nil {
			d.log.Error("Failed to publish notification",
				zap.String("event_id", msg.Event.ID),
				zap.String("event_type", string(msg.Event.Type)),
				zap.Uint64("application_id", msg.Event.ApplicationID),
				zap.Error(err),
			)
			continue
		}

		d.log.Debug("Notification published",
			zap.String("event_id", msg.Event.ID),
			zap.String("event_type", string(msg.Event.Type)),
			zap.Int("recipients", len(msg.Recipients)),
		)
	}
}

// Close stops accepting messages and waits for the queue to drain or ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RedisPublisher publishes each message as JSON on a pub/sub channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

// Publish implements Publisher.
func (p *RedisPublisher) Publish(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.channel, payload).Err()
}

// Nop discards every notification.
type Nop struct{}

func (Nop) Notify(context.Context, []uint64, domain.Event) {}
