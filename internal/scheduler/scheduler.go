// Package scheduler drives the recurring ScheduledJob lifecycle of
// spec.md §4.8. Grounded on the teacher's
// internal/application/trigger.CronScheduler: it keeps robfig/cron/v3 as
// the periodic tick driver, but where the teacher schedules one cron
// entry per user-authored trigger expression, this scheduler instead
// runs a single fixed-interval cron entry (the "poll tick") that scans
// storage for ScheduledJob rows whose next_run_at has passed — because
// spec.md's ScheduledJob is interval_seconds-based self-rescheduling,
// not a wall-clock cron expression.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/flowforge/core/internal/domain"
	"github.com/flowforge/core/internal/logger"
	"github.com/flowforge/core/internal/queue"
	"github.com/flowforge/core/internal/storage"
)

// ExecuteArgs is the payload queue.FuncExecuteScheduledJobTask jobs carry.
type ExecuteArgs struct {
	JobID         string `json:"job_id"`
	CurrentRepeat int    `json:"current_repeat"`
	CurrentRetry  int    `json:"current_retry"`
}

// maxBackoff caps the exponential retry delay, matching the orchestrator's
// node-retry cap (spec.md §4.3 step 12).
const maxBackoff = 5 * time.Minute

// Scheduler polls for due ScheduledJob rows and enqueues their fire jobs,
// and drives the fire/retry/backoff/done state machine when a fire job
// is executed.
type Scheduler struct {
	jobs  storage.ScheduledJobRepository
	queue *queue.Queue
	cron  *cron.Cron
}

// New builds a Scheduler. pollSpec is a robfig/cron expression (e.g.
// "@every 5s") controlling how often the due-job scan runs.
func New(jobs storage.ScheduledJobRepository, q *queue.Queue, pollSpec string) (*Scheduler, error) {
	s := &Scheduler{
		jobs:  jobs,
		queue: q,
		cron:  cron.New(cron.WithSeconds(), cron.WithLocation(time.UTC)),
	}
	if _, err := s.cron.AddFunc(pollSpec, s.pollTick); err != nil {
		return nil, fmt.Errorf("scheduler: schedule poll tick: %w", err)
	}
	return s, nil
}

// Start begins the poll-tick cron.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the poll-tick cron and waits for any in-flight tick.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) pollTick() {
	ctx := context.Background()
	due, err := s.jobs.FindDue(ctx, time.Now())
	if err != nil {
		logger.Default().Error("scheduler: find due jobs failed", "error", err)
		return
	}
	for _, j := range due {
		args := ExecuteArgs{JobID: j.ID, CurrentRepeat: j.CurrentRepeat, CurrentRetry: j.CurrentRetry}
		if _, err := s.queue.Enqueue(ctx, queue.QueueScheduled, queue.FuncExecuteScheduledJobTask, args); err != nil {
			logger.Default().Error("scheduler: enqueue due job failed", "job_id", j.ID, "error", err)
		}
	}
}

// Dispatcher is implemented by the trigger resolver's fire path: given a
// workflow/trigger node pair and a payload, start an execution.
type Dispatcher interface {
	DispatchScheduledFire(ctx context.Context, workflowID, triggerNodeID string, payload json.RawMessage) error
}

// ExecuteFire runs one fire of a ScheduledJob per spec.md §4.8's
// execute_scheduled_job algorithm.
func (s *Scheduler) ExecuteFire(ctx context.Context, args ExecuteArgs, dispatch Dispatcher) error {
	job, err := s.jobs.FindByID(ctx, args.JobID)
	if err != nil {
		return fmt.Errorf("scheduler: load job: %w", err)
	}
	if job.Status != domain.ScheduledJobActive {
		return nil
	}

	fireErr := dispatch.DispatchScheduledFire(ctx, job.WorkflowID, job.TriggerNodeID, job.TriggerPayload)
	now := time.Now()
	job.LastRunAt = &now

	if fireErr == nil {
		job.RunCount++
		job.CurrentRepeat++
		job.CurrentRetry = 0
		if job.Exhausted() {
			job.Status = domain.ScheduledJobDone
			job.NextRunAt = nil
		} else {
			next := now.Add(time.Duration(job.IntervalSeconds) * time.Second)
			job.NextRunAt = &next
		}
		return s.jobs.Update(ctx, job)
	}

	job.CurrentRetry++
	job.ErrorCount++
	job.LastError = fireErr.Error()
	if job.CurrentRetry < job.MaxRetries {
		delay := backoffDelay(job.CurrentRetry)
		next := now.Add(delay)
		job.NextRunAt = &next
	} else {
		job.Status = domain.ScheduledJobDead
		job.NextRunAt = nil
	}
	return s.jobs.Update(ctx, job)
}

func backoffDelay(attempt int) time.Duration {
	d := time.Second
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}

// Pause transitions an active job to paused, gating further enqueues.
func (s *Scheduler) Pause(ctx context.Context, jobID string) error {
	return s.transition(ctx, jobID, domain.ScheduledJobPaused)
}

// Resume transitions a paused job back to active and computes its next
// run time from now.
func (s *Scheduler) Resume(ctx context.Context, jobID string) error {
	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("scheduler: load job: %w", err)
	}
	next := time.Now().Add(time.Duration(job.IntervalSeconds) * time.Second)
	job.Status = domain.ScheduledJobActive
	job.NextRunAt = &next
	return s.jobs.Update(ctx, job)
}

// StopJob transitions a job to stopped, a terminal state distinct from
// dead (which implies exhausted retries) and done (which implies
// exhausted repeats).
func (s *Scheduler) StopJob(ctx context.Context, jobID string) error {
	return s.transition(ctx, jobID, domain.ScheduledJobStopped)
}

func (s *Scheduler) transition(ctx context.Context, jobID string, status domain.ScheduledJobStatus) error {
	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("scheduler: load job: %w", err)
	}
	job.Status = status
	job.NextRunAt = nil
	return s.jobs.Update(ctx, job)
}
