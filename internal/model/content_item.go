// internal/model/content_item.go
package model

import "time"

// Kind is the type of generated content held by an item.
type Kind string

const (
	KindReply Kind = "reply"
	KindPost  Kind = "post"
)

// IsValid reports whether k is a known kind.
func (k Kind) IsValid() bool {
	switch k {
	case KindReply, KindPost:
		return true
	}
	return false
}

// Status is the review lifecycle position of an item.
type Status string

const (
	StatusDraft         Status = "draft"
	StatusPendingReview Status = "pending_review"
	StatusApproved      Status = "approved"
	StatusDispatched    Status = "dispatched"
	StatusFailed        Status = "failed"
	StatusRejected      Status = "rejected"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{
	StatusDraft,
	StatusPendingReview,
	StatusApproved,
	StatusDispatched,
	StatusFailed,
	StatusRejected,
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Metadata keys understood by the built-in publishers.
const (
	MetaRecipient = "recipient"
	MetaSubject   = "subject"
	MetaInReplyTo = "in_reply_to"
	MetaPlatform  = "platform"
	MetaTitle     = "title"
)

// ContentItem is a unit of generated content moving through review.
// ID, Kind, Metadata, CreatedAt and Seq never change after creation.
type ContentItem struct {
	ID               string            `db:"id" json:"id"`
	Kind             Kind              `db:"kind" json:"kind"`
	Status           Status            `db:"status" json:"status"`
	Content          string            `db:"content" json:"content"`
	Metadata         map[string]string `db:"metadata" json:"metadata"`
	Version          int64             `db:"version" json:"version"`
	CreatedAt        time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time         `db:"updated_at" json:"updated_at"`
	DispatchAttempts int               `db:"dispatch_attempts" json:"dispatch_attempts"`
	LastError        string            `db:"last_error" json:"last_error,omitempty"`
	NextAttemptAt    *time.Time        `db:"next_attempt_at" json:"next_attempt_at,omitempty"`
	DispatchedAt     *time.Time        `db:"dispatched_at" json:"dispatched_at,omitempty"`
	ExternalRef      string            `db:"external_ref" json:"external_ref,omitempty"`
	ReviewedBy       string            `db:"reviewed_by" json:"reviewed_by,omitempty"`
	Seq              int64             `db:"seq" json:"seq"`
}

// Clone returns a deep copy so stores never share maps or pointers with callers.
func (c *ContentItem) Clone() *ContentItem {
	if c == nil {
		return nil
	}
	out := *c
	if c.Metadata != nil {
		out.Metadata = make(map[string]string, len(c.Metadata))
		for k, v := range c.Metadata {
			out.Metadata[k] = v
		}
	}
	if c.NextAttemptAt != nil {
		t := *c.NextAttemptAt
		out.NextAttemptAt = &t
	}
	if c.DispatchedAt != nil {
		t := *c.DispatchedAt
		out.DispatchedAt = &t
	}
	return &out
}
