package publisher

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/unclebandit/draftdesk/internal/model"
)

// RateLimitedPublisher waits for a token before every send.
type RateLimitedPublisher struct {
	Inner   Publisher
	Limiter *rate.Limiter
}

// NewRateLimitedPublisher allows perSecond sends on average with bursts of burst.
func NewRateLimitedPublisher(inner Publisher, perSecond float64, burst int) *RateLimitedPublisher {
	return &RateLimitedPublisher{Inner: inner, Limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (p *RateLimitedPublisher) Send(ctx context.Context, item *model.ContentItem, idempotencyKey string) (Receipt, error) {
	if err := p.Limiter.Wait(ctx); err != nil {
		return Receipt{}, err
	}
	return p.Inner.Send(ctx, item, idempotencyKey)
}
