package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	appErrors "github.com/unclebandit/draftdesk/internal/errors"
	"github.com/unclebandit/draftdesk/internal/model"
)

// MemoryStore implements ContentStore in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]*model.ContentItem
	order []string // order[i] holds the item with Seq i+1
	opts  options
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		items: make(map[string]*model.ContentItem),
		opts:  buildOptions(opts),
	}
}

func (s *MemoryStore) Create(ctx context.Context, item *model.ContentItem) (*model.ContentItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	created := item.Clone()
	if created.ID == "" {
		created.ID = uuid.NewString()
	}
	if _, exists := s.items[created.ID]; exists {
		return nil, fmt.Errorf("item %s already exists", created.ID)
	}

	now := s.opts.now()
	created.Version = 0
	created.CreatedAt = now
	created.UpdatedAt = now
	created.Seq = int64(len(s.order) + 1)

	s.items[created.ID] = created
	s.order = append(s.order, created.ID)
	return created.Clone(), nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*model.ContentItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok {
		return nil, appErrors.NewNotFound(id)
	}
	return item.Clone(), nil
}

func (s *MemoryStore) Put(ctx context.Context, item *model.ContentItem, expectedVersion int64) (*model.ContentItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.items[item.ID]
	if !ok {
		return nil, appErrors.NewNotFound(item.ID)
	}
	if stored.Version != expectedVersion {
		return nil, appErrors.NewVersionConflict(item.ID, expectedVersion, stored.Version)
	}

	next := applyMutable(stored, item, expectedVersion+1, s.opts.now())
	s.items[item.ID] = next
	return next.Clone(), nil
}

func (s *MemoryStore) List(ctx context.Context, filter ListFilter) (*Page, error) {
	after, err := DecodeCursor(filter.Cursor)
	if err != nil {
		return nil, err
	}
	limit := filter.limit()

	s.mu.RLock()
	defer s.mu.RUnlock()

	page := &Page{Items: []*model.ContentItem{}}
	if after > int64(len(s.order)) {
		return page, nil
	}
	for _, id := range s.order[after:] {
		item := s.items[id]
		if !filter.matches(item) {
			continue
		}
		if len(page.Items) == limit {
			// one more match exists beyond this page
			page.NextCursor = EncodeCursor(page.Items[limit-1].Seq)
			break
		}
		page.Items = append(page.Items, item.Clone())
	}
	return page, nil
}

func (s *MemoryStore) ListDue(ctx context.Context, filter DueFilter) ([]*model.ContentItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	due := []*model.ContentItem{}
	for _, id := range s.order {
		item := s.items[id]
		if !filter.matches(item) {
			continue
		}
		due = append(due, item.Clone())
		if filter.Limit > 0 && len(due) == filter.Limit {
			break
		}
	}
	return due, nil
}

func (s *MemoryStore) CountByStatus(ctx context.Context) (map[model.Status]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[model.Status]int, len(model.AllStatuses))
	for _, status := range model.AllStatuses {
		counts[status] = 0
	}
	for _, item := range s.items {
		counts[item.Status]++
	}
	return counts, nil
}

var _ ContentStore = (*MemoryStore)(nil)
