package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TopicDispatch carries the ids of items that became approved.
const TopicDispatch = "content_dispatch"

// Handler processes one signal. A returned error asks the transport to redeliver
// where it supports that.
type Handler func(ctx context.Context, itemID string) error

// Queue delivers at-least-once item signals between processes.
type Queue interface {
	Publish(ctx context.Context, topic, itemID string) error
	Subscribe(ctx context.Context, topic string, handler Handler) error
	Close() error
}

// InMemoryQueue fans signals out to in-process subscribers with bounded retry.
type InMemoryQueue struct {
	mu         sync.Mutex
	handlers   map[string][]subscription
	maxRetries int
	retryDelay time.Duration
	log        zerolog.Logger
}

type subscription struct {
	ctx     context.Context
	handler Handler
}

type InMemoryOption func(*InMemoryQueue)

// WithRetry sets how often a failing handler is retried and the base delay between tries.
func WithRetry(maxRetries int, delay time.Duration) InMemoryOption {
	return func(q *InMemoryQueue) {
		q.maxRetries = maxRetries
		q.retryDelay = delay
	}
}

func WithLogger(log zerolog.Logger) InMemoryOption {
	return func(q *InMemoryQueue) { q.log = log }
}

func NewInMemoryQueue(opts ...InMemoryOption) *InMemoryQueue {
	q := &InMemoryQueue{
		handlers:   make(map[string][]subscription),
		maxRetries: 3,
		retryDelay: 500 * time.Millisecond,
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Publish hands the signal to every live subscriber of topic.
func (q *InMemoryQueue) Publish(ctx context.Context, topic, itemID string) error {
	q.mu.Lock()
	subs := make([]subscription, 0, len(q.handlers[topic]))
	for _, s := range q.handlers[topic] {
		if s.ctx.Err() == nil {
			subs = append(subs, s)
		}
	}
	q.mu.Unlock()

	if len(subs) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}
	for _, s := range subs {
		go q.process(s, itemID)
	}
	return nil
}

func (q *InMemoryQueue) process(s subscription, itemID string) {
	for attempt := 0; attempt <= q.maxRetries; attempt++ {
		if attempt > 0 {
			// linear backoff between tries
			select {
			case <-time.After(time.Duration(attempt) * q.retryDelay):
			case <-s.ctx.Done():
				return
			}
		}
		err := s.handler(s.ctx, itemID)
		if err == nil {
			return
		}
		q.log.Warn().Err(err).Str("item_id", itemID).Int("attempt", attempt+1).Msg("signal handler failed")
	}
	q.log.Error().Str("item_id", itemID).Int("retries", q.maxRetries).Msg("signal dropped after retries")
}

// Subscribe registers handler until ctx is cancelled.
func (q *InMemoryQueue) Subscribe(ctx context.Context, topic string, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], subscription{ctx: ctx, handler: handler})
	return nil
}

func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers = make(map[string][]subscription)
	return nil
}

var _ Queue = (*InMemoryQueue)(nil)
