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

func TestAcquireExecutionLease_ContentionAndRelease(t *testing.T) {
	s := miniredis.RunT(t)
	c, err := NewRedisCache(config.RedisConfig{URL: "redis://" + s.Addr()})
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	lease, err := AcquireExecutionLease(ctx, c, "exec-1", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, lease)

	_, err = AcquireExecutionLease(ctx, c, "exec-1", time.Minute)
	assert.ErrorIs(t, err, ErrLeaseHeld)

	require.NoError(t, lease.Release(ctx))

	lease2, err := AcquireExecutionLease(ctx, c, "exec-1", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, lease2)
}

func TestExecutionLease_Extend(t *testing.T) {
	s := miniredis.RunT(t)
	c, err := NewRedisCache(config.RedisConfig{URL: "redis://" + s.Addr()})
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	lease, err := AcquireExecutionLease(ctx, c, "exec-2", 2*time.Second)
	require.NoError(t, err)

	require.NoError(t, lease.Extend(ctx, time.Minute))

	s.FastForward(3 * time.Second)

	// Still held after the original TTL would have expired, since Extend
	// pushed the expiry out.
	_, err = AcquireExecutionLease(ctx, c, "exec-2", time.Minute)
	assert.ErrorIs(t, err, ErrLeaseHeld)
}

func TestExecutionLease_ReleaseDoesNotStealAnotherOwnersLease(t *testing.T) {
	s := miniredis.RunT(t)
	c, err := NewRedisCache(config.RedisConfig{URL: "redis://" + s.Addr()})
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	first, err := AcquireExecutionLease(ctx, c, "exec-3", time.Millisecond)
	require.NoError(t, err)

	s.FastForward(10 * time.Millisecond)

	second, err := AcquireExecutionLease(ctx, c, "exec-3", time.Minute)
	require.NoError(t, err)

	// first's token no longer matches the key miniredis holds, so its
	// release must be a no-op rather than dropping second's lease.
	require.NoError(t, first.Release(ctx))

	_, err = AcquireExecutionLease(ctx, c, "exec-3", time.Minute)
	assert.ErrorIs(t, err, ErrLeaseHeld)

	require.NoError(t, second.Release(ctx))
}
