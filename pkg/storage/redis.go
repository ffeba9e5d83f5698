package storage

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// RedisStore implements Store on Redis with one key per table snapshot.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisStore wraps an existing Redis client
func NewRedisStore(client *redis.Client, keyPrefix string) *RedisStore {
	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// Load implements Store.Load
func (s *RedisStore) Load(ctx context.Context, table string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key(table)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot %s: %w", table, err)
	}
	return data, nil
}

// Save implements Store.Save
func (s *RedisStore) Save(ctx context.Context, table string, data []byte) error {
	if err := s.client.Set(ctx, s.key(table), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save snapshot %s: %w", table, err)
	}
	return nil
}

// Close implements Store.Close
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Client exposes the underlying client for health checks
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

func (s *RedisStore) key(table string) string {
	return s.keyPrefix + table
}
