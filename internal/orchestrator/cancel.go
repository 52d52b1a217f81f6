package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/flowforge/core/internal/domain"
	"github.com/flowforge/core/internal/eventbus"
)

// CancelExecution marks exec cancelled and cascades to every in-flight
// child spawned via spawn_and_await, matching spec.md §4.6's partial-
// failure semantics: cancellation flows down to children, a child's own
// failure never flows up to cancel its siblings or parent.
func (o *Orchestrator) CancelExecution(ctx context.Context, executionID string) error {
	exec, err := o.executions.FindByID(ctx, executionID)
	if err != nil {
		return fmt.Errorf("orchestrator: load execution %s: %w", executionID, err)
	}
	if exec.Status.Terminal() {
		return nil
	}

	children, err := o.executions.FindChildren(ctx, executionID)
	if err != nil {
		return fmt.Errorf("orchestrator: load children: %w", err)
	}
	childIDs := make([]string, len(children))
	for i, c := range children {
		childIDs[i] = c.ExecutionID
	}
	if err := o.spawner.CancelChildren(ctx, childIDs); err != nil {
		return fmt.Errorf("orchestrator: cancel children: %w", err)
	}

	now := time.Now()
	exec.Status = domain.ExecutionCancelled
	exec.CompletedAt = &now
	if err := o.executions.Update(ctx, exec); err != nil {
		return fmt.Errorf("orchestrator: mark execution cancelled: %w", err)
	}
	o.redis.Client().Del(ctx, activeCountKey(executionID))

	o.bus.Publish(ctx, eventbus.Event{
		Type:      eventbus.EventExecutionState,
		Channel:   eventbus.ExecutionChannel(executionID),
		Data:      map[string]any{"execution_id": executionID, "status": "cancelled"},
		Timestamp: now,
	})
	return nil
}
