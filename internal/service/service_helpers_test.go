package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/draftdesk/internal/model"
	"github.com/unclebandit/draftdesk/internal/publisher"
	"github.com/unclebandit/draftdesk/internal/queue"
	"github.com/unclebandit/draftdesk/internal/repository"
	"github.com/unclebandit/draftdesk/internal/statemachine"
)

var (
	reviewer  = Credential{Subject: "rita", Role: RoleReviewer}
	generator = Credential{Subject: "gen-1", Role: RoleGenerator}
)

// stubPublisher counts sends and fails while failing is set.
type stubPublisher struct {
	mu      sync.Mutex
	calls   int
	keys    []string
	failing bool
}

func (p *stubPublisher) Send(ctx context.Context, item *model.ContentItem, key string) (publisher.Receipt, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.keys = append(p.keys, key)
	if p.failing {
		return publisher.Receipt{}, errors.New("destination unavailable")
	}
	return publisher.Receipt{ExternalRef: "ext-" + item.ID}, nil
}

func (p *stubPublisher) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// recordingQueue captures published signals without delivering them.
type recordingQueue struct {
	signals chan string
}

func newRecordingQueue() *recordingQueue {
	return &recordingQueue{signals: make(chan string, 16)}
}

func (q *recordingQueue) Publish(ctx context.Context, topic, itemID string) error {
	q.signals <- itemID
	return nil
}

func (q *recordingQueue) Subscribe(ctx context.Context, topic string, handler queue.Handler) error {
	return nil
}

func (q *recordingQueue) Close() error { return nil }

type fixture struct {
	store      *repository.MemoryStore
	review     *ReviewService
	gen        *Generator
	dispatcher *Dispatcher
	pub        *stubPublisher
	clock      time.Time
}

func newFixture(t *testing.T, policy string, maxAttempts int, q queue.Queue) *fixture {
	t.Helper()
	f := &fixture{
		store: repository.NewMemoryStore(),
		pub:   &stubPublisher{},
		clock: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	}
	machine := statemachine.New(maxAttempts)
	log := zerolog.Nop()

	f.review = NewReviewService(f.store, machine, q, ReviewConfig{HandoffPolicy: policy, DefaultLimit: 2, MaxLimit: 5}, log)
	f.gen = NewGenerator(f.store, machine, policy, log)
	f.dispatcher = NewDispatcher(f.store, f.pub, q, DispatchConfig{
		MaxAttempts: maxAttempts,
		Backoff:     Backoff{Base: time.Minute, Max: 10 * time.Minute, Multiplier: 2},
		ScanBatch:   50,
	}, log)
	f.dispatcher.now = func() time.Time { return f.clock }
	f.review.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) emitReply(t *testing.T, content string) *model.ContentItem {
	t.Helper()
	item, err := f.gen.Emit(context.Background(), generator, model.KindReply, content,
		map[string]string{model.MetaRecipient: "ana@example.com"})
	require.NoError(t, err)
	return item
}

func (f *fixture) approved(t *testing.T) *model.ContentItem {
	t.Helper()
	item := f.emitReply(t, "We have shipped the fix.")
	item, err := f.review.Approve(context.Background(), reviewer, item.ID, item.Version)
	require.NoError(t, err)
	return item
}
