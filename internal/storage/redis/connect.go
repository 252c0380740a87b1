package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	goredis "github.com/redis/go-redis/v9"
)

// ErrNotReady is returned when Redis cannot be reached within the
// configured retries.
var ErrNotReady = errors.New("redis: server not ready")

// Config configures the Redis client.
type Config struct {
	// URL is a redis:// or rediss:// URL.
	URL string `koanf:"url"`

	// KeyPrefix is prepended to every option key.
	KeyPrefix string `koanf:"key_prefix"`

	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts uint64        `koanf:"connect_attempts"`
	ConnectInterval time.Duration `koanf:"connect_interval"`
}

// DefaultConfig returns the default configuration for url.
func DefaultConfig(url string) Config {
	return Config{
		URL:             url,
		KeyPrefix:       "khm_preview:opt:",
		ConnectTimeout:  10 * time.Second,
		ConnectAttempts: 5,
		ConnectInterval: 500 * time.Millisecond,
	}
}

// Connect creates a client and pings it, retrying with exponential backoff.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (*goredis.Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}

	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	client := goredis.NewClient(opts)
	eb := backoff.NewExponentialBackOff()
	if cfg.ConnectInterval > 0 {
		eb.InitialInterval = cfg.ConnectInterval
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, cfg.ConnectAttempts), ctx)

	err = backoff.RetryNotify(func() error {
		return client.Ping(ctx).Err()
	}, policy, func(err error, wait time.Duration) {
		logger.Warn("redis not ready, retrying", "error", err, "wait", wait)
	})
	if err != nil {
		_ = client.Close()
		return nil, errors.Join(ErrNotReady, err)
	}
	return client, nil
}
