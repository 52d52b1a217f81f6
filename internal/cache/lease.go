package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLeaseHeld is returned by AcquireExecutionLease when another worker
// already holds the lease.
var ErrLeaseHeld = errors.New("cache: execution lease already held")

const leasePrefix = "flowcore:lease:execution:"

// releaseScript deletes the lease key only if it still holds our token,
// so a worker can never release a lease it no longer owns (e.g. after its
// own lease expired and another worker picked the execution up).
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

// ExecutionLease is the advisory, short-TTL lock spec.md §4.3 step 1
// requires a worker hold for the duration of one node-job invocation.
type ExecutionLease struct {
	cache *RedisCache
	key   string
	token string
}

// AcquireExecutionLease attempts a SET NX PX lock keyed by executionID. On
// contention it returns ErrLeaseHeld immediately; the caller (the queue
// worker) is expected to requeue the job with a small delay rather than
// block.
func AcquireExecutionLease(ctx context.Context, c *RedisCache, executionID string, ttl time.Duration) (*ExecutionLease, error) {
	key := leasePrefix + executionID
	token := uuid.NewString()
	ok, err := c.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("cache: acquire lease: %w", err)
	}
	if !ok {
		return nil, ErrLeaseHeld
	}
	return &ExecutionLease{cache: c, key: key, token: token}, nil
}

// Extend pushes the lease's expiry out by ttl, used by long-running node
// attempts (e.g. a slow subprocess) to avoid losing the lease mid-invocation.
func (l *ExecutionLease) Extend(ctx context.Context, ttl time.Duration) error {
	ok, err := l.cache.client.Expire(ctx, l.key, ttl).Result()
	if err != nil {
		return fmt.Errorf("cache: extend lease: %w", err)
	}
	if !ok {
		return ErrLeaseHeld
	}
	return nil
}

// Release drops the lease if this token still owns it.
func (l *ExecutionLease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.cache.client, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("cache: release lease: %w", err)
	}
	return nil
}
