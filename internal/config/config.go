// internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	PolicySubmit = "submit"
	PolicyHold   = "hold"

	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

type Config struct {
	Port         string `env:"PORT" env-default:"8080"`
	StoreBackend string `env:"STORE_BACKEND" env-default:"memory"`
	DatabaseURL  string `env:"DATABASE_URL"`
	RedisURL     string `env:"REDIS_URL"`
	AMQPURL      string `env:"AMQP_URL"`
	JWTSecret    string `env:"JWT_SECRET" env-default:"dev-secret-change-me"`

	Review   ReviewConfig
	Dispatch DispatchConfig
	Publish  PublishConfig
	Log      LogConfig

	EmbeddedDispatcher bool `env:"EMBEDDED_DISPATCHER" env-default:"true"`
}

type ReviewConfig struct {
	HandoffPolicy    string `env:"HANDOFF_POLICY" env-default:"submit"`
	ListDefaultLimit int    `env:"LIST_DEFAULT_LIMIT" env-default:"20"`
	ListMaxLimit     int    `env:"LIST_MAX_LIMIT" env-default:"100"`
}

type DispatchConfig struct {
	MaxAttempts       int           `env:"MAX_DISPATCH_ATTEMPTS" env-default:"3"`
	BackoffBase       time.Duration `env:"BACKOFF_BASE" env-default:"2s"`
	BackoffMax        time.Duration `env:"BACKOFF_MAX" env-default:"5m"`
	BackoffMultiplier float64       `env:"BACKOFF_MULTIPLIER" env-default:"2"`
	ScanInterval      time.Duration `env:"SCAN_INTERVAL" env-default:"30s"`
	ScanBatch         int           `env:"SCAN_BATCH" env-default:"100"`
}

type PublishConfig struct {
	ReplyWebhookURL string        `env:"REPLY_WEBHOOK_URL"`
	PostWebhookURL  string        `env:"POST_WEBHOOK_URL"`
	Rate            float64       `env:"PUBLISH_RATE" env-default:"5"`
	Burst           int           `env:"PUBLISH_BURST" env-default:"5"`
	Timeout         time.Duration `env:"PUBLISH_TIMEOUT" env-default:"10s"`
	DedupTTL        time.Duration `env:"DEDUP_TTL" env-default:"24h"`
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL" env-default:"info"`
	Format string `env:"LOG_FORMAT" env-default:"console"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	// a missing .env is fine; the OS environment is authoritative
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for the redis store")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	if c.Review.HandoffPolicy != PolicySubmit && c.Review.HandoffPolicy != PolicyHold {
		return fmt.Errorf("unknown HANDOFF_POLICY %q", c.Review.HandoffPolicy)
	}
	if c.Review.ListDefaultLimit <= 0 || c.Review.ListMaxLimit < c.Review.ListDefaultLimit {
		return fmt.Errorf("LIST_DEFAULT_LIMIT must be positive and not above LIST_MAX_LIMIT")
	}
	if c.Dispatch.MaxAttempts < 1 {
		return fmt.Errorf("MAX_DISPATCH_ATTEMPTS must be at least 1")
	}
	if c.Dispatch.BackoffBase <= 0 || c.Dispatch.BackoffMax < c.Dispatch.BackoffBase {
		return fmt.Errorf("BACKOFF_BASE must be positive and not above BACKOFF_MAX")
	}
	if c.Dispatch.BackoffMultiplier < 1 {
		return fmt.Errorf("BACKOFF_MULTIPLIER must be at least 1")
	}
	if c.Dispatch.ScanInterval <= 0 || c.Dispatch.ScanBatch <= 0 {
		return fmt.Errorf("SCAN_INTERVAL and SCAN_BATCH must be positive")
	}
	if c.Publish.Rate <= 0 || c.Publish.Burst <= 0 {
		return fmt.Errorf("PUBLISH_RATE and PUBLISH_BURST must be positive")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	return nil
}
