// Package statemachine holds the approval lifecycle rules for content items.
// It is pure: no storage, no clocks, no I/O.
package statemachine

import (
	"fmt"

	appErrors "github.com/unclebandit/draftdesk/internal/errors"
	"github.com/unclebandit/draftdesk/internal/model"
)

// Action is a requested lifecycle step.
type Action string

const (
	ActionSubmit         Action = "submit"
	ActionEdit           Action = "edit"
	ActionApprove        Action = "approve"
	ActionReject         Action = "reject"
	ActionMarkDispatched Action = "mark_dispatched"
	ActionMarkFailed     Action = "mark_failed"
	ActionRetry          Action = "retry"
	ActionRequeue        Action = "requeue"
)

// DefaultMaxAttempts bounds Publisher invocations per item when no limit is configured.
const DefaultMaxAttempts = 3

// Machine evaluates transitions. The zero value uses DefaultMaxAttempts.
type Machine struct {
	MaxAttempts int
}

// New returns a Machine with the given dispatch attempt budget.
func New(maxAttempts int) Machine {
	return Machine{MaxAttempts: maxAttempts}
}

func (m Machine) maxAttempts() int {
	if m.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return m.MaxAttempts
}

// Transition returns the status item moves to under action, or an error wrapping
// appErrors.ErrIllegalState.
func (m Machine) Transition(item *model.ContentItem, action Action) (model.Status, error) {
	from := item.Status
	switch action {
	case ActionSubmit:
		if from == model.StatusDraft {
			return model.StatusPendingReview, nil
		}
	case ActionEdit:
		if CanEdit(from) {
			return from, nil
		}
	case ActionApprove:
		if from == model.StatusPendingReview {
			return model.StatusApproved, nil
		}
	case ActionReject:
		if from == model.StatusPendingReview {
			return model.StatusRejected, nil
		}
	case ActionMarkDispatched:
		if from == model.StatusApproved {
			return model.StatusDispatched, nil
		}
	case ActionMarkFailed:
		if from == model.StatusApproved {
			return model.StatusFailed, nil
		}
	case ActionRetry:
		if m.Retryable(item) {
			return model.StatusApproved, nil
		}
	case ActionRequeue:
		if m.Retryable(item) {
			return model.StatusPendingReview, nil
		}
	default:
		return from, fmt.Errorf("%w: unknown action %q", appErrors.ErrIllegalState, action)
	}
	return from, illegal(item, action)
}

// Retryable reports whether a failed item still has dispatch attempts left.
func (m Machine) Retryable(item *model.ContentItem) bool {
	return item.Status == model.StatusFailed && item.DispatchAttempts < m.maxAttempts()
}

// IsTerminal reports whether no further transition can ever leave the item's status.
func (m Machine) IsTerminal(item *model.ContentItem) bool {
	switch item.Status {
	case model.StatusDispatched, model.StatusRejected:
		return true
	case model.StatusFailed:
		return !m.Retryable(item)
	}
	return false
}

// CanEdit reports whether content may be changed in status s.
func CanEdit(s model.Status) bool {
	return s == model.StatusDraft || s == model.StatusPendingReview
}

func illegal(item *model.ContentItem, action Action) error {
	switch {
	case item.Status == model.StatusFailed && (action == ActionRetry || action == ActionRequeue):
		return fmt.Errorf("%w: %s not allowed, dispatch attempts exhausted (%d)", appErrors.ErrIllegalState, action, item.DispatchAttempts)
	default:
		return fmt.Errorf("%w: cannot %s item in status %s", appErrors.ErrIllegalState, action, item.Status)
	}
}
