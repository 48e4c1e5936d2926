// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates an unknown item id.
	ErrNotFound = errors.New("item not found")

	// ErrVersionConflict indicates a write against a stale version.
	ErrVersionConflict = errors.New("version conflict")

	// ErrIllegalState indicates the action is not permitted from the item's current status.
	ErrIllegalState = errors.New("illegal state transition")

	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")

	// ErrUnauthenticated indicates a missing or unusable credential.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden indicates a credential without the required role.
	ErrForbidden = errors.New("forbidden")

	// ErrPublishFailure wraps errors returned by a Publisher. It never reaches API callers.
	ErrPublishFailure = errors.New("publish failed")
)

// ItemError carries the item and operation an error occurred on.
type ItemError struct {
	ID  string
	Op  string
	Err error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("%s item %s: %v", e.Op, e.ID, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

// NewNotFound reports an unknown item.
func NewNotFound(id string) error {
	return &ItemError{ID: id, Op: "get", Err: ErrNotFound}
}

// NewVersionConflict reports a stale expected version.
func NewVersionConflict(id string, expected, actual int64) error {
	return &ItemError{
		ID:  id,
		Op:  "put",
		Err: fmt.Errorf("%w: expected version %d, current version %d", ErrVersionConflict, expected, actual),
	}
}

// NewValidation reports malformed input.
func NewValidation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
