package publisher

import (
	"context"
	"fmt"
	"math/rand"

	appErrors "github.com/unclebandit/draftdesk/internal/errors"
	"github.com/unclebandit/draftdesk/internal/model"
)

// MockPublisher pretends to deliver, failing a share of sends at random.
// Used when no webhook is configured.
type MockPublisher struct {
	FailureRate float64
}

func (m *MockPublisher) Send(ctx context.Context, item *model.ContentItem, idempotencyKey string) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	if rand.Float64() < m.FailureRate {
		return Receipt{}, fmt.Errorf("%w: mock sending failed", appErrors.ErrPublishFailure)
	}
	return Receipt{ExternalRef: "mock-" + idempotencyKey}, nil
}
