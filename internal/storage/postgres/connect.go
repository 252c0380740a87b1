package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotReady is returned when the database cannot be reached within the
// configured retries.
var ErrNotReady = errors.New("postgres: database not ready")

// Config configures the connection pool.
type Config struct {
	// URL is a libpq style connection string or postgres:// URL.
	URL string `koanf:"url"`

	MaxConns int32 `koanf:"max_conns"`
	MinConns int32 `koanf:"min_conns"`

	// ConnectAttempts bounds connection retries at startup.
	ConnectAttempts uint64 `koanf:"connect_attempts"`

	// ConnectInterval is the initial retry interval; it grows exponentially.
	ConnectInterval time.Duration `koanf:"connect_interval"`

	// MigrationsTable is the goose version table name.
	MigrationsTable string `koanf:"migrations_table"`
}

// DefaultConfig returns the default configuration for url.
func DefaultConfig(url string) Config {
	return Config{
		URL:             url,
		MaxConns:        4,
		MinConns:        0,
		ConnectAttempts: 5,
		ConnectInterval: 500 * time.Millisecond,
		MigrationsTable: "khm_preview_goose_version",
	}
}

// Connect opens a pool and pings it, retrying with exponential backoff.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	if logger == nil {
		logger = slog.Default()
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MinConns = cfg.MinConns

	var pool *pgxpool.Pool
	op := func() error {
		p, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return err
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return err
		}
		pool = p
		return nil
	}

	eb := backoff.NewExponentialBackOff()
	if cfg.ConnectInterval > 0 {
		eb.InitialInterval = cfg.ConnectInterval
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, cfg.ConnectAttempts), ctx)

	err = backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		logger.Warn("postgres not ready, retrying", "error", err, "wait", wait)
	})
	if err != nil {
		return nil, errors.Join(ErrNotReady, err)
	}
	return pool, nil
}
