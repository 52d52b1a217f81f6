package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) (*Queue, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client), s
}

func TestQueue_EnqueueDequeue_FIFO(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, QueueWorkflows, FuncExecuteWorkflowJob, map[string]string{"execution_id": "e1"})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, QueueWorkflows, FuncExecuteWorkflowJob, map[string]string{"execution_id": "e2"})
	require.NoError(t, err)

	job, err := q.Dequeue(ctx, time.Second, QueueWorkflows)
	require.NoError(t, err)
	require.NotNil(t, job)
	var args map[string]string
	require.NoError(t, json.Unmarshal(job.Args, &args))
	assert.Equal(t, "e1", args["execution_id"])

	job, err = q.Dequeue(ctx, time.Second, QueueWorkflows)
	require.NoError(t, err)
	require.NotNil(t, job)
	require.NoError(t, json.Unmarshal(job.Args, &args))
	assert.Equal(t, "e2", args["execution_id"])
}

func TestQueue_Dequeue_TimeoutReturnsNil(t *testing.T) {
	q, _ := newTestQueue(t)
	job, err := q.Dequeue(context.Background(), 50*time.Millisecond, QueueWorkflows)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestQueue_EnqueueDelayed_PromoteDue(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	_, err := q.EnqueueDelayed(ctx, QueueScheduled, FuncExecuteScheduledJobTask, map[string]string{"job_id": "j1"}, time.Second)
	require.NoError(t, err)

	n, err := q.PromoteDue(ctx, QueueScheduled)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// PromoteDue compares scores against the wall clock, which miniredis's
	// FastForward does not move, so wait out the delay for real.
	time.Sleep(1100 * time.Millisecond)

	n, err = q.PromoteDue(ctx, QueueScheduled)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	job, err := q.Dequeue(ctx, time.Second, QueueScheduled)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, FuncExecuteScheduledJobTask, job.Function)
}

func TestQueue_Dequeue_PriorityByQueueOrder(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, QueueScheduled, FuncExecuteScheduledJobTask, map[string]string{"x": "low-priority"})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, QueueWorkflows, FuncExecuteWorkflowJob, map[string]string{"x": "high-priority"})
	require.NoError(t, err)

	job, err := q.Dequeue(ctx, time.Second, QueueWorkflows, QueueScheduled)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, FuncExecuteWorkflowJob, job.Function)
}
