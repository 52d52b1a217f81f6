// Package spawn implements the spawn_and_await child-execution protocol
// of spec.md §4.6 steps 1-5. Grounded on the teacher's
// pkg/engine.DAGExecutor.executeSubWorkflow (parallel fan-out over a
// for_each list, per-item result aggregation, partial-failure tolerant),
// generalized from a synchronous in-process fan-out that blocks on
// sync.WaitGroup into an asynchronous one: children are durable
// WorkflowExecution rows enqueued onto the shared queue, and the parent
// resumes only once every sibling reaches a terminal state, rather than
// the caller goroutine blocking on completion.
package spawn

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/flowforge/core/internal/domain"
	"github.com/flowforge/core/internal/queue"
	"github.com/flowforge/core/internal/storage"
)

// Task is one spawn request. WorkflowID, when set, names the child
// workflow directly (the sub-workflow component type's contract);
// otherwise WorkflowSlug is resolved against the workflow repository,
// with "self" meaning the parent's own workflow.
type Task struct {
	WorkflowID   string `json:"workflow_id,omitempty"`
	WorkflowSlug string `json:"workflow_slug,omitempty"`
	InputText    string `json:"input_text"`
}

// Interrupt is the agent-surfaced payload spec.md §4.6 describes.
type Interrupt struct {
	Action string `json:"action"`
	Tasks  []Task `json:"tasks"`
}

// Result is one entry in the ordered result list delivered back to the
// parent's agent tool-call, in submission order.
type Result struct {
	Index       int                    `json:"index"`
	ExecutionID string                 `json:"execution_id"`
	Status      domain.ExecutionStatus `json:"status"`
	Output      json.RawMessage        `json:"output,omitempty"`
	Error       string                 `json:"_error,omitempty"`
}

// Spawner creates and tracks child executions for one spawn_and_await
// interrupt.
type Spawner struct {
	executions storage.ExecutionRepository
	workflows  storage.WorkflowRepository
	queue      *queue.Queue
}

// New builds a Spawner.
func New(executions storage.ExecutionRepository, workflows storage.WorkflowRepository, q *queue.Queue) *Spawner {
	return &Spawner{executions: executions, workflows: workflows, queue: q}
}

// Spawn executes spec.md §4.6 steps 1-3: marks the parent interrupted,
// creates one child execution per task (resolving "self" to the parent's
// own workflow), and enqueues them. Returns the child execution IDs in
// submission order, which the caller persists as the parent's wait state.
func (s *Spawner) Spawn(ctx context.Context, parent *domain.Execution, parentNodeID string, interrupt Interrupt) ([]string, error) {
	parent.Status = domain.ExecutionInterrupted
	if err := s.executions.Update(ctx, parent); err != nil {
		return nil, fmt.Errorf("spawn: mark parent interrupted: %w", err)
	}

	childIDs := make([]string, len(interrupt.Tasks))
	for i, task := range interrupt.Tasks {
		workflowID := parent.WorkflowID
		switch {
		case task.WorkflowID != "":
			workflowID = task.WorkflowID
		case task.WorkflowSlug != "" && task.WorkflowSlug != "self":
			wf, err := s.workflows.FindBySlug(ctx, task.WorkflowSlug)
			if err != nil {
				return nil, fmt.Errorf("spawn: resolve workflow slug %q: %w", task.WorkflowSlug, err)
			}
			workflowID = wf.ID
		}

		payload, err := json.Marshal(map[string]string{"input_text": task.InputText})
		if err != nil {
			return nil, fmt.Errorf("spawn: marshal task payload: %w", err)
		}

		child := &domain.Execution{
			WorkflowID:        workflowID,
			ParentExecutionID: parent.ExecutionID,
			ParentNodeID:      parentNodeID,
			UserProfileID:     parent.UserProfileID,
			Status:            domain.ExecutionPending,
			TriggerPayload:    payload,
		}
		if err := s.executions.Create(ctx, child); err != nil {
			return nil, fmt.Errorf("spawn: create child execution: %w", err)
		}
		childIDs[i] = child.ExecutionID

		if _, err := s.queue.Enqueue(ctx, queue.QueueWorkflows, queue.FuncExecuteWorkflowJob, map[string]string{
			"execution_id": child.ExecutionID,
		}); err != nil {
			return nil, fmt.Errorf("spawn: enqueue child: %w", err)
		}
	}
	return childIDs, nil
}

// CollectIfReady implements spec.md §4.6 step 4: if every child in
// childIDs has reached a terminal state, returns the ordered Result list;
// otherwise returns nil, false to signal the caller should keep waiting.
func (s *Spawner) CollectIfReady(ctx context.Context, childIDs []string) ([]Result, bool, error) {
	results := make([]Result, len(childIDs))
	for i, id := range childIDs {
		child, err := s.executions.FindByID(ctx, id)
		if err != nil {
			return nil, false, fmt.Errorf("spawn: load child %s: %w", id, err)
		}
		if !child.Status.Terminal() {
			return nil, false, nil
		}
		r := Result{Index: i, ExecutionID: child.ExecutionID, Status: child.Status, Output: child.FinalOutput}
		if child.Status == domain.ExecutionFailed {
			r.Error = child.ErrorMessage
		}
		results[i] = r
	}
	return results, true, nil
}

// CancelChildren cancels every non-terminal child execution, implementing
// the cascade half of spec.md §4.6's partial-failure semantics: parent
// cancellation cascades to children, but a child failure never cancels
// its siblings.
func (s *Spawner) CancelChildren(ctx context.Context, childIDs []string) error {
	for _, id := range childIDs {
		child, err := s.executions.FindByID(ctx, id)
		if err != nil {
			return fmt.Errorf("spawn: load child %s: %w", id, err)
		}
		if child.Status.Terminal() {
			continue
		}
		child.Status = domain.ExecutionCancelled
		if err := s.executions.Update(ctx, child); err != nil {
			return fmt.Errorf("spawn: cancel child %s: %w", id, err)
		}
	}
	return nil
}
