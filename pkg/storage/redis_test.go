package storage

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisStore(client, "warden:")
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store := newTestRedisStore(t)
	defer store.Close()

	ctx := context.Background()

	data, err := store.Load(ctx, "quota_configs")
	require.NoError(t, err)
	assert.Nil(t, data)

	require.NoError(t, store.Save(ctx, "quota_configs", []byte(`{"api_calls":{"limit":100}}`)))

	data, err = store.Load(ctx, "quota_configs")
	require.NoError(t, err)
	assert.JSONEq(t, `{"api_calls":{"limit":100}}`, string(data))
}

func TestRedisStoreKeyPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client, "warden:")
	defer store.Close()

	require.NoError(t, store.Save(context.Background(), "plans", []byte(`[]`)))
	assert.True(t, mr.Exists("warden:plans"))
}

func TestRedisStoreConnectionError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client, "warden:")
	mr.Close()

	_, err := store.Load(context.Background(), "plans")
	assert.Error(t, err)
}
