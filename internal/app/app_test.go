package app

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/draftdesk/internal/config"
	"github.com/unclebandit/draftdesk/internal/model"
	"github.com/unclebandit/draftdesk/internal/publisher"
	"github.com/unclebandit/draftdesk/internal/queue"
	"github.com/unclebandit/draftdesk/internal/repository"
	"github.com/unclebandit/draftdesk/internal/service"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("STORE_BACKEND", "memory")
	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

func TestBuildMemory(t *testing.T) {
	cfg := testConfig(t)
	c, err := Build(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer c.Close()

	assert.IsType(t, &repository.MemoryStore{}, c.Store)
	assert.IsType(t, &queue.InMemoryQueue{}, c.Queue)
	assert.Nil(t, c.Redis)
	assert.Error(t, RequireSharedStore(cfg))

	pub, ok := c.Publisher(cfg, zerolog.Nop()).(*publisher.RateLimitedPublisher)
	require.True(t, ok)
	idem, ok := pub.Inner.(*publisher.IdempotentPublisher)
	require.True(t, ok)
	assert.IsType(t, &publisher.MemoryDeduper{}, idem.Deduper)
}

func TestBuildRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.StoreBackend = config.BackendRedis
	cfg.RedisURL = "redis://" + mr.Addr()

	c, err := Build(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer c.Close()

	assert.IsType(t, &repository.RedisStore{}, c.Store)
	assert.NoError(t, RequireSharedStore(cfg))

	pub := c.Publisher(cfg, zerolog.Nop()).(*publisher.RateLimitedPublisher)
	assert.IsType(t, &publisher.RedisDeduper{}, pub.Inner.(*publisher.IdempotentPublisher).Deduper)
}

func TestComponentsRunEndToEnd(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	c, err := Build(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	defer c.Close()

	gen := c.Generator(cfg, zerolog.Nop())
	review := c.ReviewService(cfg, zerolog.Nop())

	item, err := gen.Emit(ctx, service.Credential{Subject: "gen", Role: service.RoleGenerator},
		model.KindPost, "We are live!", map[string]string{model.MetaPlatform: "mastodon"})
	require.NoError(t, err)
	approved, err := review.Approve(ctx, service.Credential{Subject: "rita", Role: service.RoleReviewer}, item.ID, item.Version)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, approved.Status)

	d := c.Dispatcher(cfg, zerolog.Nop())
	assert.Equal(t, cfg.Dispatch.MaxAttempts, d.Config.MaxAttempts)
	assert.Equal(t, cfg.Dispatch.BackoffBase, d.Config.Backoff.Base)
}
