// Package orchestrator drives one workflow execution through its compiled
// topology: dispatching node jobs onto the queue, merging each node's
// delta into the execution's durable state, selecting the next nodes to
// run, and handling the two ways a node suspends (human confirmation and
// spawn_and_await). Grounded on the teacher's pkg/engine.DAGExecutor
// (ExecuteWorkflow/executeNode/determineNextNodes), generalized from a
// synchronous, single-goroutine walk of the DAG into an asynchronous one
// where every node invocation is its own durable queue job and execution
// state lives in Postgres between jobs rather than in a Go call stack.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/flowforge/core/internal/cache"
	"github.com/flowforge/core/internal/component"
	"github.com/flowforge/core/internal/condition"
	"github.com/flowforge/core/internal/config"
	"github.com/flowforge/core/internal/domain"
	"github.com/flowforge/core/internal/errorcode"
	"github.com/flowforge/core/internal/eventbus"
	"github.com/flowforge/core/internal/graphcache"
	"github.com/flowforge/core/internal/logger"
	"github.com/flowforge/core/internal/queue"
	"github.com/flowforge/core/internal/spawn"
	"github.com/flowforge/core/internal/state"
	"github.com/flowforge/core/internal/storage"
	"github.com/flowforge/core/internal/trigger"
)

// Defaults governing the behaviour spec.md §4.3's node-job loop leaves to
// deployment tuning.
const (
	DefaultNodeMaxRetries  = 3
	leaseTTL               = 30 * time.Second
	leaseRetryDelay        = 2 * time.Second
	childWaitPollInterval  = 5 * time.Second
	defaultConfirmationTTL = 24 * time.Hour
	dispatchMarkerTTL      = time.Hour
)

// Orchestrator wires every storage/queue/cache dependency a node job needs
// and registers its handlers onto a queue.WorkerPool.
type Orchestrator struct {
	workflows    storage.WorkflowRepository
	executions   storage.ExecutionRepository
	logs         storage.ExecutionLogRepository
	pendingTasks storage.PendingTaskRepository
	states       storage.StateRepository

	redis      *cache.RedisCache
	topologies *graphcache.Cache
	components *component.Registry
	edges      *condition.EdgeEvaluator
	q          *queue.Queue
	bus        *eventbus.Bus
	spawner    *spawn.Spawner
	resolver   *trigger.Resolver

	zombieCfg config.ZombieConfig
}

// Deps bundles the constructor arguments. All fields are required except
// Resolver, which is only needed to service inbound trigger events.
type Deps struct {
	Workflows    storage.WorkflowRepository
	Executions   storage.ExecutionRepository
	Logs         storage.ExecutionLogRepository
	PendingTasks storage.PendingTaskRepository
	States       storage.StateRepository
	Redis        *cache.RedisCache
	Topologies   *graphcache.Cache
	Components   *component.Registry
	Queue        *queue.Queue
	Bus          *eventbus.Bus
	Spawner      *spawn.Spawner
	Resolver     *trigger.Resolver
	ZombieConfig config.ZombieConfig
}

// New builds an Orchestrator from deps.
func New(deps Deps) *Orchestrator {
	return &Orchestrator{
		workflows:    deps.Workflows,
		executions:   deps.Executions,
		logs:         deps.Logs,
		pendingTasks: deps.PendingTasks,
		states:       deps.States,
		redis:        deps.Redis,
		topologies:   deps.Topologies,
		components:   deps.Components,
		edges:        condition.NewEdgeEvaluator(),
		q:            deps.Queue,
		bus:          deps.Bus,
		spawner:      deps.Spawner,
		resolver:     deps.Resolver,
		zombieCfg:    deps.ZombieConfig,
	}
}

// RegisterHandlers binds every job function this package implements onto
// pool, matching the (function_name -> handler) table spec.md §6.2 names.
func (o *Orchestrator) RegisterHandlers(pool *queue.WorkerPool) {
	pool.Handle(queue.FuncExecuteWorkflowJob, o.handleExecuteWorkflow)
	pool.Handle(queue.FuncResumeWorkflowJob, o.handleResumeWorkflow)
	pool.Handle(queue.FuncExecuteNodeJob, o.handleExecuteNode)
	pool.Handle(queue.FuncCleanupStuckChildWaitsJob, o.handleCleanupStuckChildWaits)
}

type executeWorkflowArgs struct {
	ExecutionID string `json:"execution_id"`
}

type resumeWorkflowArgs struct {
	ExecutionID string      `json:"execution_id"`
	ResumeInput interface{} `json:"resume_input"`
}

type executeNodeArgs struct {
	ExecutionID string `json:"execution_id"`
	NodeID      string `json:"node_id"`
	RetryCount  int    `json:"retry_count"`
}

type cleanupArgs struct {
	ExecutionID string `json:"execution_id"`
	NodeID      string `json:"node_id"`
}

func (o *Orchestrator) handleExecuteWorkflow(ctx context.Context, raw json.RawMessage) error {
	var a executeWorkflowArgs
	if err := json.Unmarshal(raw, &a); err != nil {
		return fmt.Errorf("orchestrator: decode execute_workflow_job args: %w", err)
	}
	return o.StartExecution(ctx, a.ExecutionID)
}

func (o *Orchestrator) handleResumeWorkflow(ctx context.Context, raw json.RawMessage) error {
	var a resumeWorkflowArgs
	if err := json.Unmarshal(raw, &a); err != nil {
		return fmt.Errorf("orchestrator: decode resume_workflow_job args: %w", err)
	}
	return o.ResumeExecution(ctx, a.ExecutionID, a.ResumeInput)
}

func (o *Orchestrator) handleExecuteNode(ctx context.Context, raw json.RawMessage) error {
	var a executeNodeArgs
	if err := json.Unmarshal(raw, &a); err != nil {
		return fmt.Errorf("orchestrator: decode execute_node_job args: %w", err)
	}
	return o.ExecuteNodeJob(ctx, a.ExecutionID, a.NodeID, a.RetryCount)
}

func (o *Orchestrator) handleCleanupStuckChildWaits(ctx context.Context, raw json.RawMessage) error {
	var a cleanupArgs
	if err := json.Unmarshal(raw, &a); err != nil {
		return fmt.Errorf("orchestrator: decode cleanup_stuck_child_waits_job args: %w", err)
	}
	return o.pollChildWait(ctx, a.ExecutionID, a.NodeID)
}

// DispatchScheduledFire implements internal/scheduler.Dispatcher: one fire
// of a recurring trigger becomes one new execution.
func (o *Orchestrator) DispatchScheduledFire(ctx context.Context, workflowID, triggerNodeID string, payload json.RawMessage) error {
	_, err := o.CreateAndStartExecution(ctx, workflowID, triggerNodeID, payload, "", "", "")
	return err
}

// Dispatch resolves an inbound event (webhook, manual, telegram, ...) via
// the trigger resolver and starts the matching execution. A nil, nil
// return means TRIGGER_NOT_MATCHED: no workflow claims the event, which
// spec.md §7 treats as a no-op rather than a failure.
func (o *Orchestrator) Dispatch(ctx context.Context, eventType string, eventData map[string]any) (*domain.Execution, error) {
	if o.resolver == nil {
		return nil, fmt.Errorf("orchestrator: no trigger resolver configured")
	}
	res, err := o.resolver.Resolve(ctx, eventType, eventData)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, nil
	}
	payload, err := json.Marshal(eventData)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: marshal event payload: %w", err)
	}
	return o.CreateAndStartExecution(ctx, res.Workflow.ID, res.TriggerNode.ID, payload, "", "", "")
}

// CreateAndStartExecution persists a new pending Execution row and
// enqueues its execute_workflow_job.
func (o *Orchestrator) CreateAndStartExecution(ctx context.Context, workflowID, triggerNodeID string, payload json.RawMessage, parentExecutionID, parentNodeID, userProfileID string) (*domain.Execution, error) {
	exec := &domain.Execution{
		WorkflowID:        workflowID,
		TriggerNodeID:     triggerNodeID,
		TriggerPayload:    payload,
		ParentExecutionID: parentExecutionID,
		ParentNodeID:      parentNodeID,
		UserProfileID:     userProfileID,
		ThreadID:          domain.ThreadIDFor(userProfileID, chatIDFromPayload(payload), workflowID),
		Status:            domain.ExecutionPending,
		MaxRetries:        DefaultNodeMaxRetries,
	}
	if err := o.executions.Create(ctx, exec); err != nil {
		return nil, fmt.Errorf("orchestrator: create execution: %w", err)
	}
	if _, err := o.q.Enqueue(ctx, queue.QueueWorkflows, queue.FuncExecuteWorkflowJob, executeWorkflowArgs{ExecutionID: exec.ExecutionID}); err != nil {
		return nil, fmt.Errorf("orchestrator: enqueue execute_workflow_job: %w", err)
	}
	return exec, nil
}

// StartExecution implements spec.md §4.3's execution bootstrap: loads the
// execution and its workflow, compiles the topology, seeds the initial
// state from the trigger payload, and dispatches every entry node.
func (o *Orchestrator) StartExecution(ctx context.Context, executionID string) error {
	exec, err := o.executions.FindByID(ctx, executionID)
	if err != nil {
		return fmt.Errorf("orchestrator: load execution %s: %w", executionID, err)
	}
	if exec.Status.Terminal() {
		return nil
	}

	wf, err := o.workflows.FindByID(ctx, exec.WorkflowID)
	if err != nil {
		return fmt.Errorf("orchestrator: load workflow %s: %w", exec.WorkflowID, err)
	}
	topo, err := o.topologies.GetOrBuild(wf, exec.TriggerNodeID)
	if err != nil {
		return fmt.Errorf("orchestrator: build topology: %w", err)
	}

	now := time.Now()
	exec.Status = domain.ExecutionRunning
	exec.StartedAt = &now
	if err := o.executions.Update(ctx, exec); err != nil {
		return fmt.Errorf("orchestrator: mark execution running: %w", err)
	}

	st := newSeededState(exec)
	if err := o.states.Save(ctx, executionID, st); err != nil {
		return fmt.Errorf("orchestrator: save seed state: %w", err)
	}

	o.bus.Publish(ctx, eventbus.Event{
		Type:      eventbus.EventExecutionStarted,
		Channel:   eventbus.ExecutionChannel(executionID),
		Data:      map[string]any{"execution_id": executionID, "workflow_id": wf.ID},
		Timestamp: now,
	})

	if len(topo.EntryNodeIDs) == 0 {
		return fmt.Errorf("orchestrator: workflow %s has no entry nodes", wf.ID)
	}
	for _, id := range topo.EntryNodeIDs {
		if err := o.enqueueNode(ctx, executionID, id, 0); err != nil {
			return err
		}
	}
	return nil
}

// ResumeExecution implements the `_resume_input` half of spec.md §4.7: a
// human answered a pending confirmation. The PendingTask's node is
// re-dispatched with the resume payload attached to state.
func (o *Orchestrator) ResumeExecution(ctx context.Context, executionID string, resumeInput interface{}) error {
	exec, err := o.executions.FindByID(ctx, executionID)
	if err != nil {
		return fmt.Errorf("orchestrator: load execution %s: %w", executionID, err)
	}
	if exec.Status != domain.ExecutionInterrupted {
		return fmt.Errorf("orchestrator: execution %s is not awaiting confirmation", executionID)
	}

	task, err := o.pendingTasks.FindByExecution(ctx, executionID)
	if err != nil {
		return fmt.Errorf("orchestrator: load pending task: %w", err)
	}

	st, err := o.states.Load(ctx, executionID)
	if err != nil {
		return fmt.Errorf("orchestrator: load state: %w", err)
	}
	st.ResumeInput = resumeInput
	if err := o.states.Save(ctx, executionID, st); err != nil {
		return fmt.Errorf("orchestrator: save resume state: %w", err)
	}

	exec.Status = domain.ExecutionRunning
	if err := o.executions.Update(ctx, exec); err != nil {
		return fmt.Errorf("orchestrator: mark execution running: %w", err)
	}
	if err := o.pendingTasks.Delete(ctx, task.TaskID); err != nil {
		logger.Default().Warn("orchestrator: delete pending task failed", "task_id", task.TaskID, "error", err)
	}

	return o.enqueueResumedNode(ctx, executionID, task.NodeID)
}

// newSeededState builds the initial State for an execution, decoding its
// trigger payload into state.Trigger so node templates can address
// {{ trigger.field }} from node zero, and seeding UserContext with the
// thread_id (spec.md §9) agent nodes key their checkpoints on.
func newSeededState(exec *domain.Execution) *state.State {
	st := state.New(exec.ExecutionID)
	if len(exec.TriggerPayload) > 0 {
		var trig map[string]interface{}
		if err := json.Unmarshal(exec.TriggerPayload, &trig); err == nil {
			st.Trigger = trig
		}
	}
	st.UserContext["thread_id"] = exec.ThreadID
	st.UserContext["user_id"] = exec.UserProfileID
	return st
}

// chatIDFromPayload best-effort extracts a chat_id from a trigger payload so
// domain.ThreadIDFor can fold it into the thread_id scheme spec.md §9 defines
// (distinct threads per chat within the same user+workflow). Workflows
// triggered without a chat-bearing payload (schedules, webhooks with no
// chat_id field) fall back to the user+workflow-only form.
func chatIDFromPayload(payload json.RawMessage) string {
	if len(payload) == 0 {
		return ""
	}
	var v struct {
		ChatID         string `json:"chat_id"`
		ExternalChatID string `json:"external_chat_id"`
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return ""
	}
	if v.ChatID != "" {
		return v.ChatID
	}
	return v.ExternalChatID
}
