package repository

import (
	"context"
	"time"

	"github.com/unclebandit/draftdesk/internal/model"
)

// ContentStore is durable keyed storage of content items with version stamps.
// Put is the only mutation path for existing items.
type ContentStore interface {
	// Create inserts a new item at version 0 and assigns its ordering key.
	Create(ctx context.Context, item *model.ContentItem) (*model.ContentItem, error)

	// Get returns the item or an error wrapping appErrors.ErrNotFound.
	Get(ctx context.Context, id string) (*model.ContentItem, error)

	// Put atomically replaces the mutable fields of the item if the stored version
	// equals expectedVersion, storing expectedVersion+1. Otherwise it fails with
	// appErrors.ErrVersionConflict and writes nothing.
	Put(ctx context.Context, item *model.ContentItem, expectedVersion int64) (*model.ContentItem, error)

	// List returns items in ascending ordering-key order after the cursor.
	List(ctx context.Context, filter ListFilter) (*Page, error)

	// ListDue returns items the dispatch scan should look at.
	ListDue(ctx context.Context, filter DueFilter) ([]*model.ContentItem, error)

	// CountByStatus returns the number of items per status.
	CountByStatus(ctx context.Context) (map[model.Status]int, error)
}

// ListFilter selects a page of items.
type ListFilter struct {
	Statuses []model.Status // empty means any status
	Kind     model.Kind     // empty means any kind
	Cursor   string
	Limit    int
}

// Page is one page of a cursor listing. NextCursor is empty on the last page.
type Page struct {
	Items      []*model.ContentItem
	NextCursor string
}

// DueFilter selects approved items whose scheduled time has come and failed
// items whose retry is due.
type DueFilter struct {
	Now         time.Time
	MaxAttempts int
	Limit       int
}

// DefaultListLimit is used when a filter carries no positive limit.
const DefaultListLimit = 20

// Option configures a store.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source used for created_at/updated_at.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

func (f ListFilter) matches(item *model.ContentItem) bool {
	if f.Kind != "" && item.Kind != f.Kind {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if item.Status == s {
			return true
		}
	}
	return false
}

func (f ListFilter) limit() int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	return f.Limit
}

func (f DueFilter) matches(item *model.ContentItem) bool {
	switch item.Status {
	case model.StatusApproved:
	case model.StatusFailed:
		if item.DispatchAttempts >= f.MaxAttempts {
			return false
		}
	default:
		return false
	}
	return item.NextAttemptAt == nil || !item.NextAttemptAt.After(f.Now)
}

// applyMutable copies the caller-controlled fields of in onto a copy of stored.
// Identity, kind, metadata, creation time and ordering key always come from stored.
func applyMutable(stored, in *model.ContentItem, version int64, now time.Time) *model.ContentItem {
	next := stored.Clone()
	src := in.Clone()
	next.Status = src.Status
	next.Content = src.Content
	next.DispatchAttempts = src.DispatchAttempts
	next.LastError = src.LastError
	next.NextAttemptAt = src.NextAttemptAt
	next.DispatchedAt = src.DispatchedAt
	next.ExternalRef = src.ExternalRef
	next.ReviewedBy = src.ReviewedBy
	next.Version = version
	next.UpdatedAt = now
	return next
}
