package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	selectOption = `SELECT option_value FROM khm_options WHERE option_name = $1`

	upsertOption = `INSERT INTO khm_options (option_name, option_value)
VALUES ($1, $2)
ON CONFLICT (option_name) DO UPDATE
SET option_value = EXCLUDED.option_value, updated_at = now()`

	insertOptionIfAbsent = `INSERT INTO khm_options (option_name, option_value)
VALUES ($1, $2)
ON CONFLICT (option_name) DO NOTHING`
)

// OptionStore implements storage.OptionStore on a khm_options table.
type OptionStore struct {
	pool *pgxpool.Pool
}

// NewOptionStore creates an option store using pool.
func NewOptionStore(pool *pgxpool.Pool) *OptionStore {
	return &OptionStore{pool: pool}
}

// Read returns the option value and whether it exists.
func (s *OptionStore) Read(ctx context.Context, name string) (string, bool, error) {
	var value string
	err := s.pool.QueryRow(ctx, selectOption, name).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("postgres: read option %s: %w", name, err)
	}
	return value, true, nil
}

// Write stores value under name.
func (s *OptionStore) Write(ctx context.Context, name, value string) error {
	if _, err := s.pool.Exec(ctx, upsertOption, name, value); err != nil {
		return fmt.Errorf("postgres: write option %s: %w", name, err)
	}
	return nil
}

// CreateIfAbsent inserts value unless a row exists, then reads the row in
// a new statement so a concurrent winner's commit is visible.
func (s *OptionStore) CreateIfAbsent(ctx context.Context, name, value string) (string, error) {
	if _, err := s.pool.Exec(ctx, insertOptionIfAbsent, name, value); err != nil {
		return "", fmt.Errorf("postgres: create option %s: %w", name, err)
	}
	stored, found, err := s.Read(ctx, name)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("postgres: option %s vanished after insert", name)
	}
	return stored, nil
}

// Ping checks database connectivity.
func (s *OptionStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *OptionStore) Close() error {
	s.pool.Close()
	return nil
}
