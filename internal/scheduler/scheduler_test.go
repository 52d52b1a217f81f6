package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/core/internal/domain"
	"github.com/flowforge/core/internal/queue"
)

type fakeScheduledJobRepository struct {
	byID map[string]*domain.ScheduledJob
}

func newFakeScheduledJobRepository(jobs ...*domain.ScheduledJob) *fakeScheduledJobRepository {
	m := make(map[string]*domain.ScheduledJob, len(jobs))
	for _, j := range jobs {
		m[j.ID] = j
	}
	return &fakeScheduledJobRepository{byID: m}
}

func (f *fakeScheduledJobRepository) Create(ctx context.Context, j *domain.ScheduledJob) error {
	f.byID[j.ID] = j
	return nil
}
func (f *fakeScheduledJobRepository) Update(ctx context.Context, j *domain.ScheduledJob) error {
	f.byID[j.ID] = j
	return nil
}
func (f *fakeScheduledJobRepository) FindByID(ctx context.Context, id string) (*domain.ScheduledJob, error) {
	j, ok := f.byID[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return j, nil
}
func (f *fakeScheduledJobRepository) FindDue(ctx context.Context, before time.Time) ([]*domain.ScheduledJob, error) {
	var out []*domain.ScheduledJob
	for _, j := range f.byID {
		if j.Status == domain.ScheduledJobActive && j.NextRunAt != nil && !j.NextRunAt.After(before) {
			out = append(out, j)
		}
	}
	return out, nil
}

type fakeDispatcher struct {
	err   error
	calls int
}

func (d *fakeDispatcher) DispatchScheduledFire(ctx context.Context, workflowID, triggerNodeID string, payload json.RawMessage) error {
	d.calls++
	return d.err
}

func newTestQueue(t *testing.T) *queue.Queue {
	t.Helper()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return queue.New(client)
}

func TestScheduler_ExecuteFire_SuccessReschedulesNextRun(t *testing.T) {
	job := &domain.ScheduledJob{
		ID: "job-1", Status: domain.ScheduledJobActive,
		IntervalSeconds: 60, TotalRepeats: 0, MaxRetries: 3,
	}
	repo := newFakeScheduledJobRepository(job)
	sched, err := New(repo, newTestQueue(t), "@every 1h")
	require.NoError(t, err)

	dispatcher := &fakeDispatcher{}
	require.NoError(t, sched.ExecuteFire(context.Background(), ExecuteArgs{JobID: "job-1"}, dispatcher))

	assert.Equal(t, 1, dispatcher.calls)
	assert.Equal(t, domain.ScheduledJobActive, job.Status)
	assert.Equal(t, 1, job.RunCount)
	assert.Equal(t, 1, job.CurrentRepeat)
	assert.Equal(t, 0, job.CurrentRetry)
	require.NotNil(t, job.NextRunAt)
}

func TestScheduler_ExecuteFire_BoundedJobReachesDone(t *testing.T) {
	job := &domain.ScheduledJob{
		ID: "job-2", Status: domain.ScheduledJobActive,
		IntervalSeconds: 60, TotalRepeats: 1, MaxRetries: 3, CurrentRepeat: 0,
	}
	repo := newFakeScheduledJobRepository(job)
	sched, err := New(repo, newTestQueue(t), "@every 1h")
	require.NoError(t, err)

	require.NoError(t, sched.ExecuteFire(context.Background(), ExecuteArgs{JobID: "job-2"}, &fakeDispatcher{}))

	assert.Equal(t, domain.ScheduledJobDone, job.Status)
	assert.Nil(t, job.NextRunAt)
}

func TestScheduler_ExecuteFire_FailureBacksOffThenDeadAfterMaxRetries(t *testing.T) {
	job := &domain.ScheduledJob{
		ID: "job-3", Status: domain.ScheduledJobActive,
		IntervalSeconds: 60, MaxRetries: 2,
	}
	repo := newFakeScheduledJobRepository(job)
	sched, err := New(repo, newTestQueue(t), "@every 1h")
	require.NoError(t, err)

	dispatcher := &fakeDispatcher{err: errors.New("trigger dispatch failed")}

	require.NoError(t, sched.ExecuteFire(context.Background(), ExecuteArgs{JobID: "job-3"}, dispatcher))
	assert.Equal(t, domain.ScheduledJobActive, job.Status)
	assert.Equal(t, 1, job.CurrentRetry)
	require.NotNil(t, job.NextRunAt)

	require.NoError(t, sched.ExecuteFire(context.Background(), ExecuteArgs{JobID: "job-3"}, dispatcher))
	assert.Equal(t, domain.ScheduledJobDead, job.Status)
	assert.Nil(t, job.NextRunAt)
}

func TestScheduler_ExecuteFire_SkipsNonActiveJob(t *testing.T) {
	job := &domain.ScheduledJob{ID: "job-4", Status: domain.ScheduledJobPaused}
	repo := newFakeScheduledJobRepository(job)
	sched, err := New(repo, newTestQueue(t), "@every 1h")
	require.NoError(t, err)

	dispatcher := &fakeDispatcher{}
	require.NoError(t, sched.ExecuteFire(context.Background(), ExecuteArgs{JobID: "job-4"}, dispatcher))
	assert.Equal(t, 0, dispatcher.calls)
}

func TestScheduler_PauseResumeStopJob(t *testing.T) {
	job := &domain.ScheduledJob{ID: "job-5", Status: domain.ScheduledJobActive, IntervalSeconds: 30}
	repo := newFakeScheduledJobRepository(job)
	sched, err := New(repo, newTestQueue(t), "@every 1h")
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, sched.Pause(ctx, "job-5"))
	assert.Equal(t, domain.ScheduledJobPaused, job.Status)
	assert.Nil(t, job.NextRunAt)

	require.NoError(t, sched.Resume(ctx, "job-5"))
	assert.Equal(t, domain.ScheduledJobActive, job.Status)
	require.NotNil(t, job.NextRunAt)

	require.NoError(t, sched.StopJob(ctx, "job-5"))
	assert.Equal(t, domain.ScheduledJobStopped, job.Status)
	assert.Nil(t, job.NextRunAt)
}

func TestScheduler_PollTick_EnqueuesDueJobs(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	job := &domain.ScheduledJob{
		ID: "job-6", Status: domain.ScheduledJobActive,
		NextRunAt: &past, IntervalSeconds: 60,
	}
	repo := newFakeScheduledJobRepository(job)
	q := newTestQueue(t)
	sched, err := New(repo, q, "@every 1h")
	require.NoError(t, err)

	sched.pollTick()

	j, err := q.Dequeue(context.Background(), time.Second, queue.QueueScheduled)
	require.NoError(t, err)
	require.NotNil(t, j)
	assert.Equal(t, queue.FuncExecuteScheduledJobTask, j.Function)

	var args ExecuteArgs
	require.NoError(t, json.Unmarshal(j.Args, &args))
	assert.Equal(t, "job-6", args.JobID)
}
