package cache

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *RedisCache {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skip("Redis not available")
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return FromClient(rdb, "test:"+uuid.NewString()+":")
}

func TestRedisCache_SetGetDelete(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	require.NoError(t, c.Set(ctx, "k", payload{Name: "x", Count: 3}, time.Minute))

	var got payload
	require.NoError(t, c.Get(ctx, "k", &got))
	assert.Equal(t, payload{Name: "x", Count: 3}, got)

	exists, err := c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, c.Delete(ctx, "k"))
	assert.ErrorIs(t, c.Get(ctx, "k", &got), ErrMiss)
}

func TestRedisCache_DeletePrefix(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "user:1:dashboard", 1, time.Minute))
	require.NoError(t, c.Set(ctx, "user:1:transactions", 2, time.Minute))
	require.NoError(t, c.Set(ctx, "user:2:dashboard", 3, time.Minute))

	require.NoError(t, c.DeletePrefix(ctx, "user:1:"))

	var v int
	assert.ErrorIs(t, c.Get(ctx, "user:1:dashboard", &v), ErrMiss)
	assert.ErrorIs(t, c.Get(ctx, "user:1:transactions", &v), ErrMiss)
	require.NoError(t, c.Get(ctx, "user:2:dashboard", &v))
	assert.Equal(t, 3, v)
}
