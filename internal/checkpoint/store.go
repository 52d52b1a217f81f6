// Package checkpoint implements the thread_id-keyed checkpoint store of
// spec.md §3/§9: an opaque binary blob an LLM-driven agent node persists its
// tool-calling state into across a spawn_and_await interrupt, and reads back
// write-through on resume. Grounded on the teacher's in-memory
// CheckpointManager (internal/application/engine/execution_checkpoint.go),
// generalized from an execution_id-keyed map to a thread_id-keyed store with
// a Redis-backed implementation alongside the same in-memory one for tests.
package checkpoint

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store persists and retrieves the opaque checkpoint blob for a thread_id.
// Load's second return reports whether a checkpoint existed.
type Store interface {
	Load(ctx context.Context, threadID string) ([]byte, bool, error)
	Save(ctx context.Context, threadID string, data []byte) error
	Delete(ctx context.Context, threadID string) error
}

func key(threadID string) string {
	return "flowcore:checkpoint:" + threadID
}

// DefaultTTL bounds how long an abandoned checkpoint lingers in Redis.
const DefaultTTL = 24 * time.Hour

// RedisStore is grounded on internal/cache's go-redis client usage,
// generalized from the lease/counter primitives there to a generic
// thread_id-keyed blob.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore wraps client. ttl <= 0 uses DefaultTTL.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Load(ctx context.Context, threadID string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, key(threadID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("checkpoint: load %s: %w", threadID, err)
	}
	return data, true, nil
}

func (s *RedisStore) Save(ctx context.Context, threadID string, data []byte) error {
	if err := s.client.Set(ctx, key(threadID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("checkpoint: save %s: %w", threadID, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, threadID string) error {
	if err := s.client.Del(ctx, key(threadID)).Err(); err != nil {
		return fmt.Errorf("checkpoint: delete %s: %w", threadID, err)
	}
	return nil
}

// MemoryStore is an in-process Store, grounded on the teacher's
// CheckpointManager map — used in component/orchestrator tests in place of
// a Redis dependency.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (s *MemoryStore) Load(ctx context.Context, threadID string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.data[threadID]
	return d, ok, nil
}

func (s *MemoryStore) Save(ctx context.Context, threadID string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[threadID] = data
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, threadID)
	return nil
}
