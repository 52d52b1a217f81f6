package queue

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPool_DispatchesRegisteredHandler(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()
	q := New(client)

	var mu sync.Mutex
	var seen []string

	pool := NewWorkerPool(q, 20*time.Millisecond, QueueWorkflows)
	pool.Handle(FuncExecuteWorkflowJob, func(ctx context.Context, args json.RawMessage) error {
		var decoded map[string]string
		require.NoError(t, json.Unmarshal(args, &decoded))
		mu.Lock()
		seen = append(seen, decoded["execution_id"])
		mu.Unlock()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx, 2)

	_, err := q.Enqueue(context.Background(), QueueWorkflows, FuncExecuteWorkflowJob, map[string]string{"execution_id": "e1"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	pool.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"e1"}, seen)
}

func TestWorkerPool_UnknownFunctionIsSkippedNotFatal(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()
	q := New(client)

	pool := NewWorkerPool(q, 20*time.Millisecond, QueueWorkflows)
	called := make(chan struct{}, 1)
	pool.Handle("some_other_job", func(ctx context.Context, args json.RawMessage) error {
		called <- struct{}{}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx, 1)
	defer func() {
		cancel()
		pool.Stop()
	}()

	_, err := q.Enqueue(context.Background(), QueueWorkflows, FuncExecuteWorkflowJob, map[string]string{"execution_id": "e1"})
	require.NoError(t, err)

	select {
	case <-called:
		t.Fatal("handler for unregistered function should not run")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWorkerPool_PromoterMovesDelayedJobsWhenDue(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()
	q := New(client)

	done := make(chan struct{}, 1)
	pool := NewWorkerPool(q, 20*time.Millisecond, QueueScheduled)
	pool.Handle(FuncExecuteScheduledJobTask, func(ctx context.Context, args json.RawMessage) error {
		done <- struct{}{}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx, 1)
	defer func() {
		cancel()
		pool.Stop()
	}()

	_, err := q.EnqueueDelayed(context.Background(), QueueScheduled, FuncExecuteScheduledJobTask, map[string]string{"job_id": "j1"}, 30*time.Millisecond)
	require.NoError(t, err)

	s.FastForward(time.Second)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("delayed job was never promoted and dispatched")
	}
}
