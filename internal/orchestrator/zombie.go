package orchestrator

import (
	"context"
	"time"

	"github.com/flowforge/core/internal/domain"
	"github.com/flowforge/core/internal/errorcode"
	"github.com/flowforge/core/internal/eventbus"
	"github.com/flowforge/core/internal/logger"
	"github.com/flowforge/core/internal/queue"
)

// maxZombieRetries bounds how many times a stale execution is revived
// before it is declared dead, independent of a node's own retry budget —
// a zombie sweep is recovering from a worker crash, not a component
// failure, so it gets its own small, fixed allowance.
const maxZombieRetries = 2

// StartZombieSweeper launches a goroutine that periodically scans for
// executions with no ExecutionLog activity inside the configured
// threshold and revives or kills them, implementing spec.md §4.3's "zombie
// execution" recovery path. The goroutine exits once ctx is cancelled.
func (o *Orchestrator) StartZombieSweeper(ctx context.Context) {
	interval := o.zombieCfg.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := o.sweepZombies(ctx); err != nil {
					logger.Default().Error("orchestrator: zombie sweep failed", "error", err)
				}
			}
		}
	}()
}

func (o *Orchestrator) sweepZombies(ctx context.Context) error {
	threshold := o.zombieCfg.ThresholdSeconds
	if threshold <= 0 {
		threshold = 900
	}
	cutoff := time.Now().Add(-time.Duration(threshold) * time.Second)

	stale, err := o.executions.FindStaleRunning(ctx, cutoff)
	if err != nil {
		return err
	}
	for _, exec := range stale {
		o.reviveOrKill(ctx, exec)
	}
	return nil
}

func (o *Orchestrator) reviveOrKill(ctx context.Context, exec *domain.Execution) {
	logs, err := o.logs.FindByExecution(ctx, exec.ExecutionID)
	if err != nil {
		logger.Default().Error("orchestrator: load logs for zombie recovery failed", "execution_id", exec.ExecutionID, "error", err)
		return
	}

	lastNodeID := ""
	lastRetry := 0
	if len(logs) > 0 {
		last := logs[len(logs)-1]
		lastNodeID = last.NodeID
		lastRetry = last.RetryCount
	}
	if lastNodeID == "" {
		o.killZombie(ctx, exec)
		return
	}

	exec.RetryCount++
	if exec.RetryCount > maxZombieRetries {
		o.killZombie(ctx, exec)
		return
	}
	if err := o.executions.Update(ctx, exec); err != nil {
		logger.Default().Error("orchestrator: update zombie retry count failed", "execution_id", exec.ExecutionID, "error", err)
		return
	}

	// Re-enqueue the job directly, bypassing enqueueNode: this is the
	// same unit of work whose active-count debt was already incurred by
	// the vanished worker, not a new dispatch.
	if _, err := o.q.Enqueue(ctx, queue.QueueWorkflows, queue.FuncExecuteNodeJob, executeNodeArgs{
		ExecutionID: exec.ExecutionID, NodeID: lastNodeID, RetryCount: lastRetry,
	}); err != nil {
		logger.Default().Error("orchestrator: re-enqueue zombie node job failed", "execution_id", exec.ExecutionID, "node_id", lastNodeID, "error", err)
	}
}

// killZombie fails the execution directly rather than through decrActive's
// finalize path: by the time the active-count debt is repaid the execution
// row must already read Failed, so the usual "decrement then finalize if
// zero" ordering would finalize against a state that still says Running.
func (o *Orchestrator) killZombie(ctx context.Context, exec *domain.Execution) {
	now := time.Now()
	exec.Status = domain.ExecutionFailed
	exec.ErrorMessage = errorcode.New(errorcode.Zombie, nil).Error()
	exec.CompletedAt = &now
	if err := o.executions.Update(ctx, exec); err != nil {
		logger.Default().Error("orchestrator: kill zombie execution failed", "execution_id", exec.ExecutionID, "error", err)
		return
	}
	o.redis.Client().Del(ctx, activeCountKey(exec.ExecutionID))
	o.fireErrorHandler(ctx, exec)
	o.bus.Publish(ctx, eventbus.Event{
		Type:      eventbus.EventExecutionFailed,
		Channel:   eventbus.ExecutionChannel(exec.ExecutionID),
		Data:      map[string]any{"execution_id": exec.ExecutionID, "status": string(exec.Status), "reason": "zombie"},
		Timestamp: now,
	})
}
