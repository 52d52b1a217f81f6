package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/core/internal/config"
)

func setupCache(t *testing.T, s *miniredis.Miniredis) *RedisCache {
	t.Helper()
	c, err := NewRedisCache(config.RedisConfig{
		URL:      "redis://" + s.Addr(),
		DB:       0,
		PoolSize: 10,
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestNewRedisCache_InvalidURL(t *testing.T) {
	_, err := NewRedisCache(config.RedisConfig{URL: "not-a-url"})
	assert.Error(t, err)
}

func TestNewRedisCache_ConnectionRefused(t *testing.T) {
	_, err := NewRedisCache(config.RedisConfig{URL: "redis://127.0.0.1:1"})
	assert.Error(t, err)
}

func TestNewRedisCache_AppliesPasswordAndDB(t *testing.T) {
	s := miniredis.RunT(t)
	s.RequireAuth("hunter2")

	c, err := NewRedisCache(config.RedisConfig{
		URL:      "redis://" + s.Addr(),
		Password: "hunter2",
		DB:       3,
		PoolSize: 5,
	})
	require.NoError(t, err)
	defer c.Close()

	assert.NoError(t, c.Health(context.Background()))
}

func TestRedisCache_SetGetDelete(t *testing.T) {
	s := miniredis.RunT(t)
	c := setupCache(t, s)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v1", 0))
	v, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v1", v)

	require.NoError(t, c.Delete(ctx, "k"))
	_, err = c.Get(ctx, "k")
	assert.Error(t, err)
}

func TestRedisCache_SetWithTTL_Expires(t *testing.T) {
	s := miniredis.RunT(t)
	c := setupCache(t, s)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "ttl", "v", time.Second))
	s.FastForward(2 * time.Second)

	_, err := c.Get(ctx, "ttl")
	assert.Error(t, err)
}

func TestRedisCache_Exists(t *testing.T) {
	s := miniredis.RunT(t)
	c := setupCache(t, s)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", "1", 0))
	require.NoError(t, c.Set(ctx, "b", "2", 0))

	n, err := c.Exists(ctx, "a", "b", "missing")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestRedisCache_Health(t *testing.T) {
	s := miniredis.RunT(t)
	c := setupCache(t, s)

	assert.NoError(t, c.Health(context.Background()))
	require.NoError(t, c.Close())
	assert.Error(t, c.Health(context.Background()))
}

func TestRedisCache_Stats(t *testing.T) {
	s := miniredis.RunT(t)
	c := setupCache(t, s)

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", "v", 0))
	_, _ = c.Get(ctx, "k")

	stats := c.Stats()
	require.NotNil(t, stats)
}
