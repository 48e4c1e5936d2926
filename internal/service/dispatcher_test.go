package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/draftdesk/internal/errors"
	"github.com/unclebandit/draftdesk/internal/model"
	"github.com/unclebandit/draftdesk/internal/publisher"
	"github.com/unclebandit/draftdesk/internal/queue"
)

func TestDispatchExhaustsAttempts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, PolicySubmit, 2, nil)
	f.pub.failing = true
	item := f.approved(t)

	require.NoError(t, f.dispatcher.Dispatch(ctx, item.ID))
	first, err := f.store.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, first.Status)
	assert.Equal(t, 1, first.DispatchAttempts)
	assert.Equal(t, "destination unavailable", first.LastError)
	require.NotNil(t, first.NextAttemptAt)
	assert.Equal(t, f.clock.Add(time.Minute), *first.NextAttemptAt)

	// not due yet
	n, err := f.dispatcher.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	require.NoError(t, f.dispatcher.Dispatch(ctx, item.ID))
	assert.Equal(t, 1, f.pub.Calls())

	f.clock = f.clock.Add(2 * time.Minute)
	n, err = f.dispatcher.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	final, err := f.store.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, final.Status)
	assert.Equal(t, 2, final.DispatchAttempts)
	assert.Nil(t, final.NextAttemptAt)
	assert.Nil(t, final.DispatchedAt)
	assert.True(t, f.dispatcher.Machine.IsTerminal(final))

	f.clock = f.clock.Add(time.Hour)
	n, err = f.dispatcher.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 2, f.pub.Calls())
}

func TestDispatchRecoversAfterTransientFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, PolicySubmit, 3, nil)
	f.pub.failing = true
	item := f.approved(t)

	require.NoError(t, f.dispatcher.Dispatch(ctx, item.ID))
	f.pub.failing = false
	f.clock = f.clock.Add(5 * time.Minute)
	_, err := f.dispatcher.Scan(ctx)
	require.NoError(t, err)

	got, err := f.store.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDispatched, got.Status)
	assert.Equal(t, 2, got.DispatchAttempts)
	assert.Empty(t, got.LastError)
	assert.Equal(t, "ext-"+item.ID, got.ExternalRef)

	// every attempt for one item carries the same key
	require.Len(t, f.pub.keys, 2)
	assert.Equal(t, f.pub.keys[0], f.pub.keys[1])
	assert.Equal(t, publisher.IdempotencyKey(item.ID), f.pub.keys[0])
}

func TestDuplicateSignalsSendOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, PolicySubmit, 3, nil)
	item := f.approved(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.dispatcher.Dispatch(ctx, item.ID))
		}()
	}
	wg.Wait()
	require.NoError(t, f.dispatcher.Dispatch(ctx, item.ID))

	assert.Equal(t, 1, f.pub.Calls())
	got, err := f.store.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDispatched, got.Status)
	assert.Equal(t, item.Version+1, got.Version)
}

// barrierPublisher holds every sender until n of them have arrived.
type barrierPublisher struct {
	wg sync.WaitGroup
}

func (b *barrierPublisher) Send(ctx context.Context, item *model.ContentItem, key string) (publisher.Receipt, error) {
	b.wg.Done()
	b.wg.Wait()
	return publisher.Receipt{ExternalRef: key}, nil
}

func TestCompetingDispatchersRecordOneOutcome(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, PolicySubmit, 3, nil)
	item := f.approved(t)

	pub := &barrierPublisher{}
	pub.wg.Add(2)
	a := NewDispatcher(f.store, pub, nil, DispatchConfig{MaxAttempts: 3}, zerolog.Nop())
	b := NewDispatcher(f.store, pub, nil, DispatchConfig{MaxAttempts: 3}, zerolog.Nop())

	var wg sync.WaitGroup
	for _, d := range []*Dispatcher{a, b} {
		wg.Add(1)
		go func(d *Dispatcher) {
			defer wg.Done()
			assert.NoError(t, d.Dispatch(ctx, item.ID))
		}(d)
	}
	wg.Wait()

	got, err := f.store.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDispatched, got.Status)
	assert.Equal(t, 1, got.DispatchAttempts)
	assert.Equal(t, item.Version+1, got.Version)
}

func TestDispatchIgnoresItemsOutsideDispatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, PolicySubmit, 3, nil)
	pending := f.emitReply(t, "not approved")

	require.NoError(t, f.dispatcher.Dispatch(ctx, pending.ID))
	require.NoError(t, f.dispatcher.Dispatch(ctx, "no-such-item"))
	assert.Equal(t, 0, f.pub.Calls())
}

func TestScanPicksUpLostSignals(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, PolicySubmit, 3, nil)
	first := f.approved(t)
	second := f.approved(t)

	n, err := f.dispatcher.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, id := range []string{first.ID, second.ID} {
		got, err := f.store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.StatusDispatched, got.Status)
	}
}

func TestRunDispatchesOnSignal(t *testing.T) {
	q := queue.NewInMemoryQueue(queue.WithRetry(1, time.Millisecond))
	f := newFixture(t, PolicySubmit, 3, q)
	f.dispatcher.Config.ScanInterval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.dispatcher.Run(ctx) }()

	// the subscription is live once a publish finds a subscriber
	require.Eventually(t, func() bool {
		return q.Publish(context.Background(), queue.TopicDispatch, "probe") == nil
	}, time.Second, time.Millisecond)

	item := f.approved(t)
	assert.Eventually(t, func() bool {
		got, err := f.store.Get(context.Background(), item.ID)
		return err == nil && got.Status == model.StatusDispatched
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Base: 2 * time.Second, Max: 5 * time.Minute, Multiplier: 2}
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, 2 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{8, 256 * time.Second},
		{9, 5 * time.Minute},
		{40, 5 * time.Minute},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, b.Delay(tt.attempts), "attempts=%d", tt.attempts)
	}
}

func TestScheduledApprovalWaitsForItsTime(t *testing.T) {
	ctx := context.Background()
	q := newRecordingQueue()
	f := newFixture(t, PolicySubmit, 3, q)
	item := f.emitReply(t, "Our maintenance window starts at noon.")

	at := f.clock.Add(time.Hour)
	approved, err := f.review.ApproveAt(ctx, reviewer, item.ID, item.Version, &at)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, approved.Status)
	require.NotNil(t, approved.NextAttemptAt)
	assert.Equal(t, at, *approved.NextAttemptAt)

	// a signal or scan before the scheduled time sends nothing
	require.NoError(t, f.dispatcher.Dispatch(ctx, item.ID))
	n, err := f.dispatcher.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, f.pub.Calls())
	select {
	case id := <-q.signals:
		t.Fatalf("unexpected signal for %s", id)
	case <-time.After(20 * time.Millisecond):
	}

	f.clock = at
	n, err = f.dispatcher.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.store.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDispatched, got.Status)
	assert.Nil(t, got.NextAttemptAt)
	assert.Equal(t, 1, f.pub.Calls())
}

func TestApproveAtRejectsZeroTime(t *testing.T) {
	f := newFixture(t, PolicySubmit, 3, nil)
	item := f.emitReply(t, "hello")

	_, err := f.review.ApproveAt(context.Background(), reviewer, item.ID, item.Version, &time.Time{})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	got, err := f.store.Get(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPendingReview, got.Status)
}
