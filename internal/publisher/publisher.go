package publisher

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/draftdesk/internal/errors"
	"github.com/unclebandit/draftdesk/internal/model"
)

// Receipt is what a destination hands back for a delivered item.
type Receipt struct {
	ExternalRef string `json:"external_ref"`
}

// Publisher delivers approved content to its destination. Implementations must
// treat repeated sends with the same idempotency key as one delivery where the
// destination allows it.
type Publisher interface {
	Send(ctx context.Context, item *model.ContentItem, idempotencyKey string) (Receipt, error)
}

// keyNamespace scopes idempotency keys to this service.
var keyNamespace = uuid.MustParse("6f1c8a52-3a7e-4b0e-9d55-2f6b0c7e4a91")

// IdempotencyKey derives a stable key from the item id, so every attempt for an item carries the same key.
func IdempotencyKey(itemID string) string {
	return uuid.NewSHA1(keyNamespace, []byte(itemID)).String()
}

// KindRouter sends each item to the publisher registered for its kind.
type KindRouter struct {
	routes map[model.Kind]Publisher
}

func NewKindRouter(routes map[model.Kind]Publisher) *KindRouter {
	return &KindRouter{routes: routes}
}

func (r *KindRouter) Send(ctx context.Context, item *model.ContentItem, idempotencyKey string) (Receipt, error) {
	p, ok := r.routes[item.Kind]
	if !ok || p == nil {
		return Receipt{}, fmt.Errorf("%w: no publisher for kind %q", appErrors.ErrPublishFailure, item.Kind)
	}
	return p.Send(ctx, item, idempotencyKey)
}
