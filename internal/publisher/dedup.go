package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/unclebandit/draftdesk/internal/model"
)

// Deduper remembers which idempotency keys were already delivered.
type Deduper interface {
	Lookup(ctx context.Context, key string) (Receipt, bool, error)
	Remember(ctx context.Context, key string, receipt Receipt) error
}

// IdempotentPublisher skips the inner publisher for keys already delivered.
type IdempotentPublisher struct {
	Inner   Publisher
	Deduper Deduper
	Log     zerolog.Logger
}

func NewIdempotentPublisher(inner Publisher, d Deduper, log zerolog.Logger) *IdempotentPublisher {
	return &IdempotentPublisher{Inner: inner, Deduper: d, Log: log}
}

func (p *IdempotentPublisher) Send(ctx context.Context, item *model.ContentItem, idempotencyKey string) (Receipt, error) {
	receipt, seen, err := p.Deduper.Lookup(ctx, idempotencyKey)
	if err != nil {
		return Receipt{}, fmt.Errorf("dedup lookup: %w", err)
	}
	if seen {
		return receipt, nil
	}

	receipt, err = p.Inner.Send(ctx, item, idempotencyKey)
	if err != nil {
		return Receipt{}, err
	}
	// the delivery already happened, so a lost record is reported but not returned
	if err := p.Deduper.Remember(ctx, idempotencyKey, receipt); err != nil {
		p.Log.Warn().
			Err(err).
			Str("item_id", item.ID).
			Str("idempotency_key", idempotencyKey).
			Msg("delivered but not recorded, a later attempt may send again")
	}
	return receipt, nil
}

type memoryEntry struct {
	receipt Receipt
	expires time.Time
}

// MemoryDeduper keeps delivered keys in process memory.
type MemoryDeduper struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	return &MemoryDeduper{entries: make(map[string]memoryEntry), ttl: ttl, now: time.Now}
}

func (d *MemoryDeduper) Lookup(ctx context.Context, key string) (Receipt, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[key]
	if !ok {
		return Receipt{}, false, nil
	}
	if d.ttl > 0 && d.now().After(e.expires) {
		delete(d.entries, key)
		return Receipt{}, false, nil
	}
	return e.receipt, true, nil
}

func (d *MemoryDeduper) Remember(ctx context.Context, key string, receipt Receipt) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[key] = memoryEntry{receipt: receipt, expires: d.now().Add(d.ttl)}
	return nil
}

// RedisDeduper stores delivered keys as draftdesk:sent:{key} with a TTL so
// every dispatcher process shares one view.
type RedisDeduper struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{Client: client, TTL: ttl}
}

func sentKey(key string) string {
	return "draftdesk:sent:" + key
}

func (d *RedisDeduper) Lookup(ctx context.Context, key string) (Receipt, bool, error) {
	raw, err := d.Client.Get(ctx, sentKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Receipt{}, false, nil
	}
	if err != nil {
		return Receipt{}, false, err
	}
	var receipt Receipt
	if err := json.Unmarshal(raw, &receipt); err != nil {
		return Receipt{}, false, fmt.Errorf("decode receipt: %w", err)
	}
	return receipt, true, nil
}

func (d *RedisDeduper) Remember(ctx context.Context, key string, receipt Receipt) error {
	raw, err := json.Marshal(receipt)
	if err != nil {
		return err
	}
	return d.Client.SetNX(ctx, sentKey(key), raw, d.TTL).Err()
}
