package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/flowforge/core/internal/domain"
	"github.com/flowforge/core/internal/eventbus"
	"github.com/flowforge/core/internal/logger"
)

// Fan-out/fan-in DAGs can reach more than one sink; an execution is only
// truly done once every in-flight node job has settled, not the first
// time any one branch reaches a node with no successors. activeCount is a
// Redis counter, incremented once per node-job enqueue and decremented
// once per node-job that finishes being handled (success, terminal
// failure, or retry-exhaustion) — never for a suspend, since that job's
// unit of work is still outstanding. Reaching zero triggers a finalize
// check against the freshest persisted state.
func activeCountKey(executionID string) string {
	return "flowcore:active:" + executionID
}

func dispatchedKey(executionID, nodeID string) string {
	return "flowcore:dispatched:" + executionID + ":" + nodeID
}

func (o *Orchestrator) incrActive(ctx context.Context, executionID string, n int64) error {
	if err := o.redis.Client().IncrBy(ctx, activeCountKey(executionID), n).Err(); err != nil {
		return fmt.Errorf("orchestrator: incr active count: %w", err)
	}
	return nil
}

// decrActive decrements the active count and, if it has reached zero,
// attempts to finalize the execution. A decrement below zero never
// happens given the enqueue/handle pairing invariant above, but a
// defensive <= 0 check is used rather than == 0 in case of a prior
// partial failure.
func (o *Orchestrator) decrActive(ctx context.Context, executionID string, n int64) {
	count, err := o.redis.Client().DecrBy(ctx, activeCountKey(executionID), n).Result()
	if err != nil {
		logger.Default().Error("orchestrator: decr active count failed", "execution_id", executionID, "error", err)
		return
	}
	if count > 0 {
		return
	}
	o.redis.Client().Del(ctx, activeCountKey(executionID))
	if err := o.finalizeIfDone(ctx, executionID); err != nil {
		logger.Default().Error("orchestrator: finalize execution failed", "execution_id", executionID, "error", err)
	}
}

func (o *Orchestrator) finalizeIfDone(ctx context.Context, executionID string) error {
	exec, err := o.executions.FindByID(ctx, executionID)
	if err != nil {
		return err
	}
	if exec.Status.Terminal() || exec.Status != domain.ExecutionRunning {
		return nil
	}

	st, err := o.states.Load(ctx, executionID)
	if err != nil {
		return err
	}

	now := time.Now()
	if st.Error != "" {
		exec.Status = domain.ExecutionFailed
		exec.ErrorMessage = st.Error
	} else {
		exec.Status = domain.ExecutionCompleted
		if out, err := json.Marshal(st.Output); err == nil {
			exec.FinalOutput = out
		}
	}
	exec.CompletedAt = &now
	if err := o.executions.Update(ctx, exec); err != nil {
		return err
	}

	evt := eventbus.EventExecutionComplete
	if exec.Status == domain.ExecutionFailed {
		evt = eventbus.EventExecutionFailed
		o.fireErrorHandler(ctx, exec)
	}
	o.bus.Publish(ctx, eventbus.Event{
		Type:      evt,
		Channel:   eventbus.ExecutionChannel(executionID),
		Data:      map[string]any{"execution_id": executionID, "status": string(exec.Status)},
		Timestamp: now,
	})
	return nil
}

// fireErrorHandler starts the owning workflow's configured error-handler
// workflow, passing the failed execution's id and error as its trigger
// payload, per spec.md §4.3's retry-exhaustion escalation path.
func (o *Orchestrator) fireErrorHandler(ctx context.Context, exec *domain.Execution) {
	wf, err := o.workflows.FindByID(ctx, exec.WorkflowID)
	if err != nil {
		logger.Default().Error("orchestrator: load workflow for error handler check failed", "workflow_id", exec.WorkflowID, "error", err)
		return
	}
	if wf.ErrorHandlerWorkflowID == "" {
		return
	}
	handler, err := o.workflows.FindByID(ctx, wf.ErrorHandlerWorkflowID)
	if err != nil {
		logger.Default().Error("orchestrator: load error handler workflow failed", "workflow_id", wf.ErrorHandlerWorkflowID, "error", err)
		return
	}
	topo, err := o.topologies.GetOrBuild(handler, "")
	if err != nil || len(topo.EntryNodeIDs) == 0 {
		logger.Default().Error("orchestrator: error handler workflow has no entry node", "workflow_id", handler.ID)
		return
	}
	payload, _ := json.Marshal(map[string]any{
		"failed_execution_id": exec.ExecutionID,
		"error":               exec.ErrorMessage,
	})
	if _, err := o.CreateAndStartExecution(ctx, handler.ID, "", payload, "", "", exec.UserProfileID); err != nil {
		logger.Default().Error("orchestrator: dispatch error handler workflow failed", "workflow_id", handler.ID, "error", err)
	}
}

// markDispatched reserves nodeID's dispatch slot for this generation (one
// fan-in join, or one loop iteration), returning false if a sibling
// predecessor already claimed it.
func (o *Orchestrator) markDispatched(ctx context.Context, executionID, nodeID string) (bool, error) {
	ok, err := o.redis.Client().SetNX(ctx, dispatchedKey(executionID, nodeID), "1", dispatchMarkerTTL).Result()
	if err != nil {
		return false, fmt.Errorf("orchestrator: mark dispatched: %w", err)
	}
	return ok, nil
}

// clearDispatchMarker releases nodeID's dispatch slot once it finishes
// successfully, so a later loop generation can dispatch it again.
func (o *Orchestrator) clearDispatchMarker(ctx context.Context, executionID, nodeID string) {
	if err := o.redis.Client().Del(ctx, dispatchedKey(executionID, nodeID)).Err(); err != nil {
		logger.Default().Warn("orchestrator: clear dispatch marker failed", "execution_id", executionID, "node_id", nodeID, "error", err)
	}
}
