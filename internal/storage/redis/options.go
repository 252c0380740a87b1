package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

// OptionStore implements storage.OptionStore on Redis strings.
type OptionStore struct {
	client goredis.UniversalClient
	prefix string
}

// NewOptionStore creates an option store using client. Keys are prefix+name.
func NewOptionStore(client goredis.UniversalClient, prefix string) *OptionStore {
	return &OptionStore{client: client, prefix: prefix}
}

func (s *OptionStore) key(name string) string {
	return s.prefix + name
}

// Read returns the option value and whether it exists.
func (s *OptionStore) Read(ctx context.Context, name string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.key(name)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis: read option %s: %w", name, err)
	}
	return v, true, nil
}

// Write stores value under name with no expiry.
func (s *OptionStore) Write(ctx context.Context, name, value string) error {
	if err := s.client.Set(ctx, s.key(name), value, 0).Err(); err != nil {
		return fmt.Errorf("redis: write option %s: %w", name, err)
	}
	return nil
}

// CreateIfAbsent sets value with SETNX and returns whichever value won.
func (s *OptionStore) CreateIfAbsent(ctx context.Context, name, value string) (string, error) {
	created, err := s.client.SetNX(ctx, s.key(name), value, 0).Result()
	if err != nil {
		return "", fmt.Errorf("redis: create option %s: %w", name, err)
	}
	if created {
		return value, nil
	}
	stored, found, err := s.Read(ctx, name)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("redis: option %s vanished after SETNX", name)
	}
	return stored, nil
}

// Ping checks server connectivity.
func (s *OptionStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *OptionStore) Close() error {
	return s.client.Close()
}
