// internal/repository/redis.go
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	appErrors "github.com/unclebandit/draftdesk/internal/errors"
	"github.com/unclebandit/draftdesk/internal/model"
)

const (
	redisKeyPrefix = "draftdesk:"
	redisOrderKey  = redisKeyPrefix + "items"
	redisSeqKey    = redisKeyPrefix + "seq"
	redisScanBatch = 100
)

func redisItemKey(id string) string {
	return redisKeyPrefix + "item:" + id
}

func redisStatusKey(status model.Status) string {
	return redisKeyPrefix + "status:" + string(status)
}

// RedisStore implements ContentStore on redis. Each item is a JSON string;
// a sorted set scored by seq holds the listing order, and one sorted set per
// status holds the items currently in that status.
type RedisStore struct {
	Client *redis.Client
	opts   options
}

func NewRedisStore(client *redis.Client, opts ...Option) *RedisStore {
	return &RedisStore{Client: client, opts: buildOptions(opts)}
}

func (r *RedisStore) Create(ctx context.Context, item *model.ContentItem) (*model.ContentItem, error) {
	created := item.Clone()
	if created.ID == "" {
		created.ID = uuid.NewString()
	}
	key := redisItemKey(created.ID)

	seq, err := r.Client.Incr(ctx, redisSeqKey).Result()
	if err != nil {
		return nil, fmt.Errorf("allocate seq: %w", err)
	}
	now := r.opts.now()
	created.Version = 0
	created.CreatedAt = now
	created.UpdatedAt = now
	created.Seq = seq

	payload, err := json.Marshal(created)
	if err != nil {
		return nil, fmt.Errorf("encode item %s: %w", created.ID, err)
	}

	err = r.Client.Watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if exists > 0 {
			return fmt.Errorf("item %s already exists", created.ID)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			pipe.ZAdd(ctx, redisOrderKey, redis.Z{Score: float64(seq), Member: created.ID})
			pipe.ZAdd(ctx, redisStatusKey(created.Status), redis.Z{Score: float64(seq), Member: created.ID})
			return nil
		})
		return err
	}, key)
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *RedisStore) Get(ctx context.Context, id string) (*model.ContentItem, error) {
	return r.load(ctx, r.Client, id)
}

type redisGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *RedisStore) load(ctx context.Context, c redisGetter, id string) (*model.ContentItem, error) {
	raw, err := c.Get(ctx, redisItemKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, appErrors.NewNotFound(id)
		}
		return nil, err
	}
	var item model.ContentItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, fmt.Errorf("decode item %s: %w", id, err)
	}
	return &item, nil
}

// Put watches the item key so a concurrent writer aborts the transaction.
func (r *RedisStore) Put(ctx context.Context, item *model.ContentItem, expectedVersion int64) (*model.ContentItem, error) {
	key := redisItemKey(item.ID)
	var updated *model.ContentItem

	err := r.Client.Watch(ctx, func(tx *redis.Tx) error {
		stored, err := r.load(ctx, tx, item.ID)
		if err != nil {
			return err
		}
		if stored.Version != expectedVersion {
			return appErrors.NewVersionConflict(item.ID, expectedVersion, stored.Version)
		}
		next := applyMutable(stored, item, expectedVersion+1, r.opts.now())
		payload, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode item %s: %w", item.ID, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			if next.Status != stored.Status {
				pipe.ZRem(ctx, redisStatusKey(stored.Status), next.ID)
				pipe.ZAdd(ctx, redisStatusKey(next.Status), redis.Z{Score: float64(next.Seq), Member: next.ID})
			}
			return nil
		})
		if err != nil {
			return err
		}
		updated = next
		return nil
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		current, getErr := r.Get(ctx, item.ID)
		if getErr != nil {
			return nil, getErr
		}
		return nil, appErrors.NewVersionConflict(item.ID, expectedVersion, current.Version)
	}
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// each walks the items of the sorted set at setKey with seq > after in
// ascending order until fn returns false.
func (r *RedisStore) each(ctx context.Context, setKey string, after int64, fn func(*model.ContentItem) bool) error {
	for {
		members, err := r.Client.ZRangeByScoreWithScores(ctx, setKey, &redis.ZRangeBy{
			Min:   "(" + strconv.FormatInt(after, 10),
			Max:   "+inf",
			Count: redisScanBatch,
		}).Result()
		if err != nil {
			return err
		}
		if len(members) == 0 {
			return nil
		}

		keys := make([]string, len(members))
		for i, m := range members {
			keys[i] = redisItemKey(fmt.Sprint(m.Member))
		}
		values, err := r.Client.MGet(ctx, keys...).Result()
		if err != nil {
			return err
		}
		for i, v := range values {
			after = int64(members[i].Score)
			raw, ok := v.(string)
			if !ok {
				continue
			}
			var item model.ContentItem
			if err := json.Unmarshal([]byte(raw), &item); err != nil {
				return fmt.Errorf("decode item %v: %w", members[i].Member, err)
			}
			if !fn(&item) {
				return nil
			}
		}
		if len(members) < redisScanBatch {
			return nil
		}
	}
}

func (r *RedisStore) List(ctx context.Context, filter ListFilter) (*Page, error) {
	after, err := DecodeCursor(filter.Cursor)
	if err != nil {
		return nil, err
	}
	limit := filter.limit()

	page := &Page{Items: []*model.ContentItem{}}
	err = r.each(ctx, redisOrderKey, after, func(item *model.ContentItem) bool {
		if !filter.matches(item) {
			return true
		}
		if len(page.Items) == limit {
			page.NextCursor = EncodeCursor(page.Items[limit-1].Seq)
			return false
		}
		page.Items = append(page.Items, item)
		return true
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

// ListDue walks the approved set before the failed set, so fresh approvals
// are dispatched ahead of retries.
func (r *RedisStore) ListDue(ctx context.Context, filter DueFilter) ([]*model.ContentItem, error) {
	due := []*model.ContentItem{}
	for _, status := range []model.Status{model.StatusApproved, model.StatusFailed} {
		if filter.Limit > 0 && len(due) >= filter.Limit {
			break
		}
		err := r.each(ctx, redisStatusKey(status), 0, func(item *model.ContentItem) bool {
			if filter.matches(item) {
				due = append(due, item)
			}
			return filter.Limit <= 0 || len(due) < filter.Limit
		})
		if err != nil {
			return nil, err
		}
	}
	return due, nil
}

func (r *RedisStore) CountByStatus(ctx context.Context) (map[model.Status]int, error) {
	cmds := make(map[model.Status]*redis.IntCmd, len(model.AllStatuses))
	_, err := r.Client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, status := range model.AllStatuses {
			cmds[status] = pipe.ZCard(ctx, redisStatusKey(status))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	counts := make(map[model.Status]int, len(model.AllStatuses))
	for status, cmd := range cmds {
		counts[status] = int(cmd.Val())
	}
	return counts, nil
}

var _ ContentStore = (*RedisStore)(nil)
