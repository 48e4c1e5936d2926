package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/draftdesk/internal/errors"
	"github.com/unclebandit/draftdesk/internal/model"
)

var testEpoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() func() time.Time {
	return func() time.Time { return testEpoch }
}

func newReply(content string) *model.ContentItem {
	return &model.ContentItem{
		Kind:     model.KindReply,
		Status:   model.StatusPendingReview,
		Content:  content,
		Metadata: map[string]string{model.MetaRecipient: "ana@example.com"},
	}
}

// runStoreContract exercises behaviour every ContentStore backend must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) ContentStore) {
	ctx := context.Background()

	t.Run("create assigns identity and version zero", func(t *testing.T) {
		store := newStore(t)
		a, err := store.Create(ctx, newReply("a"))
		require.NoError(t, err)
		b, err := store.Create(ctx, newReply("b"))
		require.NoError(t, err)

		assert.NotEmpty(t, a.ID)
		assert.NotEqual(t, a.ID, b.ID)
		assert.Equal(t, int64(0), a.Version)
		assert.Greater(t, b.Seq, a.Seq)
		assert.False(t, a.CreatedAt.IsZero())
	})

	t.Run("get unknown id", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Get(ctx, "does-not-exist")
		assert.True(t, errors.Is(err, appErrors.ErrNotFound))
	})

	t.Run("put bumps version", func(t *testing.T) {
		store := newStore(t)
		item, err := store.Create(ctx, newReply("hello"))
		require.NoError(t, err)

		item.Content = "hello, edited"
		updated, err := store.Put(ctx, item, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(1), updated.Version)
		assert.Equal(t, "hello, edited", updated.Content)

		got, err := store.Get(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.Version)
		assert.Equal(t, "hello, edited", got.Content)
	})

	t.Run("stale put writes nothing", func(t *testing.T) {
		store := newStore(t)
		item, err := store.Create(ctx, newReply("original"))
		require.NoError(t, err)
		_, err = store.Put(ctx, item, 0)
		require.NoError(t, err)

		item.Content = "overwritten"
		item.Status = model.StatusApproved
		_, err = store.Put(ctx, item, 0)
		require.Error(t, err)
		assert.True(t, errors.Is(err, appErrors.ErrVersionConflict))

		got, err := store.Get(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.Version)
		assert.Equal(t, "original", got.Content)
		assert.Equal(t, model.StatusPendingReview, got.Status)
	})

	t.Run("put unknown id", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Put(ctx, &model.ContentItem{ID: "missing", Status: model.StatusDraft}, 0)
		assert.True(t, errors.Is(err, appErrors.ErrNotFound))
	})

	t.Run("put keeps immutable fields", func(t *testing.T) {
		store := newStore(t)
		item, err := store.Create(ctx, newReply("x"))
		require.NoError(t, err)

		tampered := item.Clone()
		tampered.Kind = model.KindPost
		tampered.Metadata = map[string]string{model.MetaPlatform: "mastodon"}
		tampered.Seq = 999
		tampered.CreatedAt = testEpoch.Add(-time.Hour)

		updated, err := store.Put(ctx, tampered, 0)
		require.NoError(t, err)
		assert.Equal(t, model.KindReply, updated.Kind)
		assert.Equal(t, item.Metadata, updated.Metadata)
		assert.Equal(t, item.Seq, updated.Seq)
		assert.True(t, item.CreatedAt.Equal(updated.CreatedAt))
	})

	t.Run("concurrent puts on one version admit a single winner", func(t *testing.T) {
		store := newStore(t)
		item, err := store.Create(ctx, newReply("race"))
		require.NoError(t, err)

		const writers = 8
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			wins      int
			conflicts int
		)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.Put(ctx, item.Clone(), 0)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					wins++
				case errors.Is(err, appErrors.ErrVersionConflict):
					conflicts++
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, wins)
		assert.Equal(t, writers-1, conflicts)
	})

	t.Run("list pages through every item once", func(t *testing.T) {
		store := newStore(t)
		var want []string
		for i := 0; i < 7; i++ {
			item, err := store.Create(ctx, newReply("item"))
			require.NoError(t, err)
			want = append(want, item.ID)
		}

		var got []string
		cursor := ""
		pages := 0
		for {
			page, err := store.List(ctx, ListFilter{Cursor: cursor, Limit: 3})
			require.NoError(t, err)
			pages++
			for _, item := range page.Items {
				got = append(got, item.ID)
			}
			if page.NextCursor == "" {
				break
			}
			cursor = page.NextCursor
		}
		assert.Equal(t, want, got)
		assert.Equal(t, 3, pages)
	})

	t.Run("exact multiple of limit ends without cursor", func(t *testing.T) {
		store := newStore(t)
		for i := 0; i < 4; i++ {
			_, err := store.Create(ctx, newReply("item"))
			require.NoError(t, err)
		}
		first, err := store.List(ctx, ListFilter{Limit: 2})
		require.NoError(t, err)
		require.NotEmpty(t, first.NextCursor)

		second, err := store.List(ctx, ListFilter{Cursor: first.NextCursor, Limit: 2})
		require.NoError(t, err)
		assert.Len(t, second.Items, 2)
		assert.Empty(t, second.NextCursor)
	})

	t.Run("inserts between pages do not disturb earlier items", func(t *testing.T) {
		store := newStore(t)
		var existing []string
		for i := 0; i < 5; i++ {
			item, err := store.Create(ctx, newReply("before"))
			require.NoError(t, err)
			existing = append(existing, item.ID)
		}

		seen := map[string]int{}
		cursor := ""
		for {
			page, err := store.List(ctx, ListFilter{Cursor: cursor, Limit: 2})
			require.NoError(t, err)
			for _, item := range page.Items {
				seen[item.ID]++
			}
			// a generator keeps emitting while the reviewer pages
			_, err = store.Create(ctx, newReply("during"))
			require.NoError(t, err)
			if page.NextCursor == "" || len(seen) > 20 {
				break
			}
			cursor = page.NextCursor
		}
		for _, id := range existing {
			assert.Equal(t, 1, seen[id], "item %s", id)
		}
		for id, n := range seen {
			assert.Equal(t, 1, n, "item %s seen twice", id)
		}
	})

	t.Run("list filters by status and kind", func(t *testing.T) {
		store := newStore(t)
		reply, err := store.Create(ctx, newReply("reply"))
		require.NoError(t, err)
		_, err = store.Create(ctx, &model.ContentItem{
			Kind:     model.KindPost,
			Status:   model.StatusPendingReview,
			Content:  "post",
			Metadata: map[string]string{model.MetaPlatform: "mastodon"},
		})
		require.NoError(t, err)
		draft := newReply("draft")
		draft.Status = model.StatusDraft
		_, err = store.Create(ctx, draft)
		require.NoError(t, err)

		page, err := store.List(ctx, ListFilter{
			Statuses: []model.Status{model.StatusPendingReview},
			Kind:     model.KindReply,
		})
		require.NoError(t, err)
		require.Len(t, page.Items, 1)
		assert.Equal(t, reply.ID, page.Items[0].ID)

		page, err = store.List(ctx, ListFilter{
			Statuses: []model.Status{model.StatusDraft, model.StatusPendingReview},
		})
		require.NoError(t, err)
		assert.Len(t, page.Items, 3)
	})

	t.Run("malformed cursor", func(t *testing.T) {
		store := newStore(t)
		_, err := store.List(ctx, ListFilter{Cursor: "%%%not-a-cursor"})
		assert.True(t, errors.Is(err, appErrors.ErrValidation))
	})

	t.Run("list due", func(t *testing.T) {
		store := newStore(t)
		create := func(status model.Status, attempts int, next *time.Time) *model.ContentItem {
			item, err := store.Create(ctx, newReply(string(status)))
			require.NoError(t, err)
			item.Status = status
			item.DispatchAttempts = attempts
			item.NextAttemptAt = next
			updated, err := store.Put(ctx, item, 0)
			require.NoError(t, err)
			return updated
		}
		past := testEpoch.Add(-time.Minute)
		future := testEpoch.Add(time.Minute)

		approved := create(model.StatusApproved, 0, nil)
		scheduledPast := create(model.StatusApproved, 0, &past)
		create(model.StatusApproved, 0, &future)
		dueRetry := create(model.StatusFailed, 1, &past)
		create(model.StatusFailed, 1, &future)
		create(model.StatusFailed, 3, &past)
		create(model.StatusPendingReview, 0, nil)
		create(model.StatusDispatched, 1, nil)

		due, err := store.ListDue(ctx, DueFilter{Now: testEpoch, MaxAttempts: 3})
		require.NoError(t, err)
		ids := []string{}
		for _, item := range due {
			ids = append(ids, item.ID)
		}
		assert.ElementsMatch(t, []string{approved.ID, scheduledPast.ID, dueRetry.ID}, ids)

		limited, err := store.ListDue(ctx, DueFilter{Now: testEpoch, MaxAttempts: 3, Limit: 1})
		require.NoError(t, err)
		assert.Len(t, limited, 1)
	})

	t.Run("count by status", func(t *testing.T) {
		store := newStore(t)
		for i := 0; i < 2; i++ {
			_, err := store.Create(ctx, newReply("pending"))
			require.NoError(t, err)
		}
		draft := newReply("draft")
		draft.Status = model.StatusDraft
		_, err := store.Create(ctx, draft)
		require.NoError(t, err)

		counts, err := store.CountByStatus(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, counts[model.StatusPendingReview])
		assert.Equal(t, 1, counts[model.StatusDraft])
		assert.Equal(t, 0, counts[model.StatusDispatched])
		assert.Len(t, counts, len(model.AllStatuses))
	})
}
