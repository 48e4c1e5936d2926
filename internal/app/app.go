// Package app assembles the components the binaries share from configuration.
package app

import (
	"context"
	"fmt"
	"io"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/unclebandit/draftdesk/internal/config"
	"github.com/unclebandit/draftdesk/internal/db"
	"github.com/unclebandit/draftdesk/internal/model"
	"github.com/unclebandit/draftdesk/internal/publisher"
	"github.com/unclebandit/draftdesk/internal/queue"
	"github.com/unclebandit/draftdesk/internal/repository"
	"github.com/unclebandit/draftdesk/internal/service"
	"github.com/unclebandit/draftdesk/internal/statemachine"
)

// Components holds everything built from one Config. Close releases the
// connections in reverse order of opening.
type Components struct {
	Store   repository.ContentStore
	Queue   queue.Queue
	Redis   *redis.Client
	Machine statemachine.Machine
	closers []io.Closer
}

func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		_ = c.closers[i].Close()
	}
}

// Build opens the configured store and signal queue.
func Build(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Components, error) {
	c := &Components{Machine: statemachine.New(cfg.Dispatch.MaxAttempts)}

	if cfg.RedisURL != "" {
		client, err := db.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		c.Redis = client
		c.closers = append(c.closers, client)
	}

	switch cfg.StoreBackend {
	case config.BackendPostgres:
		conn, err := db.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.closers = append(c.closers, conn)
		if err := repository.Migrate(ctx, conn); err != nil {
			c.Close()
			return nil, err
		}
		c.Store = repository.NewPostgresStore(conn)
	case config.BackendRedis:
		c.Store = repository.NewRedisStore(c.Redis)
	default:
		c.Store = repository.NewMemoryStore()
	}

	if cfg.AMQPURL != "" {
		q, err := queue.NewAMQPQueue(cfg.AMQPURL, log)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.Queue = q
		c.closers = append(c.closers, q)
	} else {
		q := queue.NewInMemoryQueue(queue.WithLogger(log))
		c.Queue = q
		c.closers = append(c.closers, q)
	}

	log.Info().
		Str("store", cfg.StoreBackend).
		Bool("amqp", cfg.AMQPURL != "").
		Bool("redis", c.Redis != nil).
		Msg("components ready")
	return c, nil
}

// Publisher builds the delivery chain: rate limit, then dedup, then per-kind routing.
// Kinds without a webhook fall back to the mock sender.
func (c *Components) Publisher(cfg *config.Config, log zerolog.Logger) publisher.Publisher {
	route := func(url string) publisher.Publisher {
		if url == "" {
			return &publisher.MockPublisher{FailureRate: 0.1}
		}
		return publisher.NewWebhookPublisher(url, cfg.Publish.Timeout)
	}
	router := publisher.NewKindRouter(map[model.Kind]publisher.Publisher{
		model.KindReply: route(cfg.Publish.ReplyWebhookURL),
		model.KindPost:  route(cfg.Publish.PostWebhookURL),
	})

	var dedup publisher.Deduper = publisher.NewMemoryDeduper(cfg.Publish.DedupTTL)
	if c.Redis != nil {
		dedup = publisher.NewRedisDeduper(c.Redis, cfg.Publish.DedupTTL)
	}
	return publisher.NewRateLimitedPublisher(
		publisher.NewIdempotentPublisher(router, dedup, log),
		cfg.Publish.Rate,
		cfg.Publish.Burst,
	)
}

func (c *Components) ReviewService(cfg *config.Config, log zerolog.Logger) *service.ReviewService {
	return service.NewReviewService(c.Store, c.Machine, c.Queue, service.ReviewConfig{
		HandoffPolicy: cfg.Review.HandoffPolicy,
		DefaultLimit:  cfg.Review.ListDefaultLimit,
		MaxLimit:      cfg.Review.ListMaxLimit,
	}, log)
}

func (c *Components) Generator(cfg *config.Config, log zerolog.Logger) *service.Generator {
	return service.NewGenerator(c.Store, c.Machine, cfg.Review.HandoffPolicy, log)
}

func (c *Components) Dispatcher(cfg *config.Config, log zerolog.Logger) *service.Dispatcher {
	return service.NewDispatcher(c.Store, c.Publisher(cfg, log), c.Queue, service.DispatchConfig{
		MaxAttempts: cfg.Dispatch.MaxAttempts,
		Backoff: service.Backoff{
			Base:       cfg.Dispatch.BackoffBase,
			Max:        cfg.Dispatch.BackoffMax,
			Multiplier: cfg.Dispatch.BackoffMultiplier,
		},
		ScanInterval: cfg.Dispatch.ScanInterval,
		ScanBatch:    cfg.Dispatch.ScanBatch,
	}, log)
}

// RequireSharedStore rejects the in-process store for binaries that run apart from the API server.
func RequireSharedStore(cfg *config.Config) error {
	if cfg.StoreBackend == config.BackendMemory {
		return fmt.Errorf("STORE_BACKEND=memory cannot be shared between processes")
	}
	return nil
}
