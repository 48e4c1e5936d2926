package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	appErrors "github.com/unclebandit/draftdesk/internal/errors"
	"github.com/unclebandit/draftdesk/internal/model"
)

// WebhookPublisher POSTs each item as JSON to a fixed URL.
type WebhookPublisher struct {
	URL    string
	Client *http.Client
}

func NewWebhookPublisher(url string, timeout time.Duration) *WebhookPublisher {
	return &WebhookPublisher{URL: url, Client: &http.Client{Timeout: timeout}}
}

type webhookPayload struct {
	ID       string            `json:"id"`
	Kind     model.Kind        `json:"kind"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
}

type webhookResponse struct {
	ID string `json:"id"`
}

func (w *WebhookPublisher) Send(ctx context.Context, item *model.ContentItem, idempotencyKey string) (Receipt, error) {
	body, err := json.Marshal(webhookPayload{
		ID:       item.ID,
		Kind:     item.Kind,
		Content:  item.Content,
		Metadata: item.Metadata,
	})
	if err != nil {
		return Receipt{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: %v", appErrors.ErrPublishFailure, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idempotencyKey)

	resp, err := w.Client.Do(req)
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: %v", appErrors.ErrPublishFailure, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Receipt{}, fmt.Errorf("%w: %s returned %d", appErrors.ErrPublishFailure, w.URL, resp.StatusCode)
	}

	var out webhookResponse
	if len(raw) > 0 && json.Unmarshal(raw, &out) == nil && out.ID != "" {
		return Receipt{ExternalRef: out.ID}, nil
	}
	return Receipt{ExternalRef: idempotencyKey}, nil
}
