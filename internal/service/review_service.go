// internal/service/review_service.go
package service

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	appErrors "github.com/unclebandit/draftdesk/internal/errors"
	"github.com/unclebandit/draftdesk/internal/model"
	"github.com/unclebandit/draftdesk/internal/queue"
	"github.com/unclebandit/draftdesk/internal/repository"
	"github.com/unclebandit/draftdesk/internal/statemachine"
)

const (
	PolicySubmit = "submit"
	PolicyHold   = "hold"
)

type ReviewConfig struct {
	HandoffPolicy string
	DefaultLimit  int
	MaxLimit      int
}

// ReviewService is the reviewer-facing side of the pipeline. It never calls a
// publisher; approval only emits a dispatch signal.
type ReviewService struct {
	Store   repository.ContentStore
	Machine statemachine.Machine
	Queue   queue.Queue
	Config  ReviewConfig
	Log     zerolog.Logger

	now func() time.Time
}

func NewReviewService(store repository.ContentStore, machine statemachine.Machine, q queue.Queue, cfg ReviewConfig, log zerolog.Logger) *ReviewService {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = repository.DefaultListLimit
	}
	if cfg.MaxLimit < cfg.DefaultLimit {
		cfg.MaxLimit = cfg.DefaultLimit
	}
	if cfg.HandoffPolicy == "" {
		cfg.HandoffPolicy = PolicySubmit
	}
	return &ReviewService{Store: store, Machine: machine, Queue: q, Config: cfg, Log: log, now: time.Now}
}

func (s *ReviewService) clampLimit(limit int) int {
	if limit <= 0 {
		return s.Config.DefaultLimit
	}
	if limit > s.Config.MaxLimit {
		return s.Config.MaxLimit
	}
	return limit
}

// PendingStatuses lists the statuses a reviewer works through under the configured policy.
func (s *ReviewService) PendingStatuses() []model.Status {
	if s.Config.HandoffPolicy == PolicyHold {
		return []model.Status{model.StatusDraft, model.StatusPendingReview}
	}
	return []model.Status{model.StatusPendingReview}
}

func (s *ReviewService) ListPending(ctx context.Context, cred Credential, kind model.Kind, cursor string, limit int) (*repository.Page, error) {
	return s.ListItems(ctx, cred, s.PendingStatuses(), kind, cursor, limit)
}

// ListItems pages through items with any of statuses; no statuses means the pending set.
func (s *ReviewService) ListItems(ctx context.Context, cred Credential, statuses []model.Status, kind model.Kind, cursor string, limit int) (*repository.Page, error) {
	if err := cred.require(RoleReviewer); err != nil {
		return nil, err
	}
	if kind != "" && !kind.IsValid() {
		return nil, appErrors.NewValidation("unknown kind %q", kind)
	}
	for _, st := range statuses {
		if !st.IsValid() {
			return nil, appErrors.NewValidation("unknown status %q", st)
		}
	}
	if len(statuses) == 0 {
		statuses = s.PendingStatuses()
	}
	return s.Store.List(ctx, repository.ListFilter{
		Statuses: statuses,
		Kind:     kind,
		Cursor:   cursor,
		Limit:    s.clampLimit(limit),
	})
}

func (s *ReviewService) Get(ctx context.Context, cred Credential, id string) (*model.ContentItem, error) {
	if err := cred.require(RoleReviewer); err != nil {
		return nil, err
	}
	return s.Store.Get(ctx, id)
}

// Stats counts items per status.
func (s *ReviewService) Stats(ctx context.Context, cred Credential) (map[model.Status]int, error) {
	if err := cred.require(RoleReviewer, RoleGenerator); err != nil {
		return nil, err
	}
	return s.Store.CountByStatus(ctx)
}

// IsTerminal reports whether the item has used up its dispatch budget.
func (s *ReviewService) IsTerminal(item *model.ContentItem) bool {
	return s.Machine.IsTerminal(item)
}

func (s *ReviewService) Edit(ctx context.Context, cred Credential, id string, expectedVersion int64, content string) (*model.ContentItem, error) {
	if err := cred.require(RoleReviewer); err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return nil, appErrors.NewValidation("content must not be empty")
	}
	return s.apply(ctx, id, expectedVersion, statemachine.ActionEdit, func(item *model.ContentItem) error {
		if err := checkLength(item.Kind, content, item.Metadata); err != nil {
			return err
		}
		item.Content = content
		return nil
	})
}

func (s *ReviewService) Submit(ctx context.Context, cred Credential, id string, expectedVersion int64) (*model.ContentItem, error) {
	if err := cred.require(RoleReviewer); err != nil {
		return nil, err
	}
	return s.apply(ctx, id, expectedVersion, statemachine.ActionSubmit, nil)
}

// Approve records the decision and then signals the dispatcher. The signal is
// best effort; the dispatcher scan finds approved items regardless.
func (s *ReviewService) Approve(ctx context.Context, cred Credential, id string, expectedVersion int64) (*model.ContentItem, error) {
	return s.ApproveAt(ctx, cred, id, expectedVersion, nil)
}

// ApproveAt approves the item for dispatch no earlier than scheduledAt. A nil
// scheduledAt dispatches as soon as possible.
func (s *ReviewService) ApproveAt(ctx context.Context, cred Credential, id string, expectedVersion int64, scheduledAt *time.Time) (*model.ContentItem, error) {
	if err := cred.require(RoleReviewer); err != nil {
		return nil, err
	}
	if scheduledAt != nil && scheduledAt.IsZero() {
		return nil, appErrors.NewValidation("scheduled_at must be a valid timestamp")
	}
	item, err := s.apply(ctx, id, expectedVersion, statemachine.ActionApprove, func(item *model.ContentItem) error {
		item.ReviewedBy = cred.Subject
		item.NextAttemptAt = nil
		if scheduledAt != nil {
			at := scheduledAt.UTC()
			item.NextAttemptAt = &at
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if item.NextAttemptAt == nil || !item.NextAttemptAt.After(s.now()) {
		go s.signal(item.ID)
	}
	return item, nil
}

func (s *ReviewService) Reject(ctx context.Context, cred Credential, id string, expectedVersion int64) (*model.ContentItem, error) {
	if err := cred.require(RoleReviewer); err != nil {
		return nil, err
	}
	return s.apply(ctx, id, expectedVersion, statemachine.ActionReject, func(item *model.ContentItem) error {
		item.ReviewedBy = cred.Subject
		return nil
	})
}

// Requeue sends a failed item with attempts left back to review.
func (s *ReviewService) Requeue(ctx context.Context, cred Credential, id string, expectedVersion int64) (*model.ContentItem, error) {
	if err := cred.require(RoleReviewer); err != nil {
		return nil, err
	}
	return s.apply(ctx, id, expectedVersion, statemachine.ActionRequeue, func(item *model.ContentItem) error {
		item.NextAttemptAt = nil
		item.ReviewedBy = ""
		return nil
	})
}

// apply runs one reviewer action: version check first, then the state check, then a conditional write.
func (s *ReviewService) apply(ctx context.Context, id string, expectedVersion int64, action statemachine.Action, mutate func(*model.ContentItem) error) (*model.ContentItem, error) {
	item, err := s.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.Version != expectedVersion {
		return nil, appErrors.NewVersionConflict(id, expectedVersion, item.Version)
	}
	next, err := s.Machine.Transition(item, action)
	if err != nil {
		return nil, err
	}

	item.Status = next
	if mutate != nil {
		if err := mutate(item); err != nil {
			return nil, err
		}
	}
	updated, err := s.Store.Put(ctx, item, expectedVersion)
	if err != nil {
		return nil, err
	}

	s.Log.Info().
		Str("item_id", updated.ID).
		Str("action", string(action)).
		Str("status", string(updated.Status)).
		Int64("version", updated.Version).
		Msg("review action applied")
	return updated, nil
}

func (s *ReviewService) signal(id string) {
	if s.Queue == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Queue.Publish(ctx, queue.TopicDispatch, id); err != nil {
		s.Log.Warn().Err(err).Str("item_id", id).Msg("dispatch signal not delivered, scan will pick it up")
	}
}
