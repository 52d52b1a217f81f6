package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/flowforge/core/internal/cache"
	"github.com/flowforge/core/internal/component"
	"github.com/flowforge/core/internal/domain"
	"github.com/flowforge/core/internal/errorcode"
	"github.com/flowforge/core/internal/eventbus"
	"github.com/flowforge/core/internal/logger"
	"github.com/flowforge/core/internal/queue"
	"github.com/flowforge/core/internal/spawn"
	"github.com/flowforge/core/internal/state"
	"github.com/flowforge/core/internal/template"
	"github.com/flowforge/core/internal/topology"
)

// ExecuteNodeJob implements spec.md §4.3 steps 1-9: acquire the execution
// lease, load state, resolve the node's templated config, run its
// component, merge the resulting delta, and either suspend, retry, fail,
// or dispatch the successors it unblocks.
//
// Every code path through this function ends by repaying exactly once the
// active-node-count debt this invocation's own dispatch incurred, except
// the two suspend paths (human confirmation, spawn_and_await), whose debt
// stays outstanding until the corresponding resume job settles it.
func (o *Orchestrator) ExecuteNodeJob(ctx context.Context, executionID, nodeID string, retryCount int) error {
	lease, err := cache.AcquireExecutionLease(ctx, o.redis, executionID, leaseTTL)
	if err != nil {
		if errors.Is(err, cache.ErrLeaseHeld) {
			if err := o.enqueueNodeDelayed(ctx, executionID, nodeID, retryCount, leaseRetryDelay); err != nil {
				logger.Default().Error("orchestrator: requeue lease-contended node job failed", "execution_id", executionID, "node_id", nodeID, "error", err)
			}
			o.decrActive(ctx, executionID, 1)
			return nil
		}
		o.decrActive(ctx, executionID, 1)
		return fmt.Errorf("orchestrator: acquire lease: %w", err)
	}
	defer lease.Release(ctx)

	exec, err := o.executions.FindByID(ctx, executionID)
	if err != nil {
		o.decrActive(ctx, executionID, 1)
		return fmt.Errorf("orchestrator: load execution %s: %w", executionID, err)
	}
	if exec.Status.Terminal() {
		o.decrActive(ctx, executionID, 1)
		return nil
	}

	wf, err := o.workflows.FindByID(ctx, exec.WorkflowID)
	if err != nil {
		o.decrActive(ctx, executionID, 1)
		return fmt.Errorf("orchestrator: load workflow %s: %w", exec.WorkflowID, err)
	}
	topo, err := o.topologies.GetOrBuild(wf, exec.TriggerNodeID)
	if err != nil {
		o.decrActive(ctx, executionID, 1)
		return fmt.Errorf("orchestrator: build topology: %w", err)
	}
	node, ok := topo.GetNode(nodeID)
	if !ok {
		o.decrActive(ctx, executionID, 1)
		return fmt.Errorf("orchestrator: node %s not found in topology", nodeID)
	}

	st, err := o.states.Load(ctx, executionID)
	if err != nil {
		o.decrActive(ctx, executionID, 1)
		return fmt.Errorf("orchestrator: load state: %w", err)
	}
	st.CurrentNode = nodeID

	if node.InterruptBefore && st.ResumeInput == nil {
		return o.suspendForConfirmation(ctx, exec, node, st, confirmationPrompt(node))
	}

	return o.runNodeComponent(ctx, exec, node, st, topo, retryCount)
}

// runNodeComponent builds and invokes nodeID's component runner against st,
// then dispatches the outcome exactly as ExecuteNodeJob's caller would:
// suspend, retry, fail, or advance past it. Shared by the normal dispatch
// path above and by pollChildWait's agent resume, which re-enters the same
// runner for another reasoning turn rather than finishing the node outright.
func (o *Orchestrator) runNodeComponent(ctx context.Context, exec *domain.Execution, node *domain.Node, st *state.State, topo *topology.Topology, retryCount int) error {
	resolved := o.resolveTemplates(node, st)
	runner, err := o.components.Build(resolved)
	if err != nil {
		return o.failNode(ctx, exec, node, st, errorcode.New(errorcode.ValidationError, err), retryCount)
	}

	start := time.Now()
	delta, runErr := runner(ctx, st)
	duration := time.Since(start)

	if runErr != nil {
		var interrupt *component.InterruptError
		if errors.As(runErr, &interrupt) {
			return o.suspendForConfirmation(ctx, exec, node, st, interrupt.Prompt)
		}
		var spawnInterrupt *component.SpawnInterrupt
		if errors.As(runErr, &spawnInterrupt) {
			if delta != nil {
				st = state.Merge(st, delta)
			}
			return o.suspendForChildWait(ctx, exec, node, st, spawnInterrupt)
		}
		return o.handleNodeError(ctx, exec, node, st, runErr, retryCount, duration)
	}

	return o.handleNodeSuccess(ctx, exec, node, st, delta, topo, retryCount, duration)
}

func confirmationPrompt(node *domain.Node) string {
	if node.ComponentConfig != nil && node.ComponentConfig.SystemPrompt != "" {
		return node.ComponentConfig.SystemPrompt
	}
	return "Confirmation required before continuing."
}

func (o *Orchestrator) handleNodeSuccess(ctx context.Context, exec *domain.Execution, node *domain.Node, st *state.State, delta component.Delta, topo *topology.Topology, retryCount int, duration time.Duration) error {
	outputJSON, _ := json.Marshal(delta["output"])
	o.writeLog(ctx, exec.ExecutionID, node.ID, domain.LogSuccess, nil, outputJSON, "", "", retryCount, duration)

	next := state.Merge(st, delta)
	if err := o.states.Save(ctx, exec.ExecutionID, next); err != nil {
		o.decrActive(ctx, exec.ExecutionID, 1)
		return fmt.Errorf("orchestrator: save state: %w", err)
	}
	o.applyTokenUsage(ctx, exec, next)

	o.bus.Publish(ctx, eventbus.Event{
		Type:      eventbus.EventNodeStatus,
		Channel:   eventbus.ExecutionChannel(exec.ExecutionID),
		Data:      map[string]any{"node_id": node.ID, "status": "success"},
		Timestamp: time.Now(),
	})

	o.clearDispatchMarker(ctx, exec.ExecutionID, node.ID)
	targets := o.nextNodes(ctx, exec.ExecutionID, node, next, topo)
	for _, t := range targets {
		if err := o.enqueueNode(ctx, exec.ExecutionID, t, 0); err != nil {
			logger.Default().Error("orchestrator: enqueue next node failed", "execution_id", exec.ExecutionID, "node_id", t, "error", err)
		}
	}
	o.decrActive(ctx, exec.ExecutionID, 1)
	return nil
}

func (o *Orchestrator) handleNodeError(ctx context.Context, exec *domain.Execution, node *domain.Node, st *state.State, runErr error, retryCount int, duration time.Duration) error {
	code := errorcode.Unrecoverable
	var coded *errorcode.CodedError
	if errors.As(runErr, &coded) {
		code = coded.Code
	}

	o.writeLog(ctx, exec.ExecutionID, node.ID, domain.LogFailed, nil, nil, runErr.Error(), string(code), retryCount, duration)

	if !code.Terminal() && retryCount < nodeMaxRetries(node) {
		delay := backoffDelay(retryCount + 1)
		if err := o.enqueueNodeDelayed(ctx, exec.ExecutionID, node.ID, retryCount+1, delay); err != nil {
			logger.Default().Error("orchestrator: enqueue retry failed", "execution_id", exec.ExecutionID, "node_id", node.ID, "error", err)
		}
		o.decrActive(ctx, exec.ExecutionID, 1)
		return nil
	}

	return o.failNode(ctx, exec, node, st, errorcode.New(code, runErr), retryCount)
}

// failNode marks the whole execution failed; node-local retry exhaustion
// and unrecoverable component errors both end here.
func (o *Orchestrator) failNode(ctx context.Context, exec *domain.Execution, node *domain.Node, st *state.State, coded *errorcode.CodedError, retryCount int) error {
	st.Error = coded.Error()
	if err := o.states.Save(ctx, exec.ExecutionID, st); err != nil {
		logger.Default().Error("orchestrator: save failed state", "execution_id", exec.ExecutionID, "error", err)
	}
	o.decrActive(ctx, exec.ExecutionID, 1)
	return nil
}

func (o *Orchestrator) suspendForConfirmation(ctx context.Context, exec *domain.Execution, node *domain.Node, st *state.State, prompt string) error {
	task := &domain.PendingTask{
		ExecutionID:   exec.ExecutionID,
		UserProfileID: exec.UserProfileID,
		NodeID:        node.ID,
		Prompt:        prompt,
		ExpiresAt:     time.Now().Add(defaultConfirmationTTL),
	}
	if err := o.pendingTasks.Create(ctx, task); err != nil {
		return fmt.Errorf("orchestrator: create pending task: %w", err)
	}

	exec.Status = domain.ExecutionInterrupted
	if err := o.executions.Update(ctx, exec); err != nil {
		return fmt.Errorf("orchestrator: mark execution interrupted: %w", err)
	}
	if err := o.states.Save(ctx, exec.ExecutionID, st); err != nil {
		return fmt.Errorf("orchestrator: save state: %w", err)
	}

	o.writeLog(ctx, exec.ExecutionID, node.ID, domain.LogInterrupted, nil, nil, "", "", 0, 0)
	o.bus.Publish(ctx, eventbus.Event{
		Type:      eventbus.EventExecutionState,
		Channel:   eventbus.ExecutionChannel(exec.ExecutionID),
		Data:      map[string]any{"status": "interrupted", "task_id": task.TaskID, "node_id": node.ID, "prompt": prompt},
		Timestamp: time.Now(),
	})
	return nil
}

func (o *Orchestrator) suspendForChildWait(ctx context.Context, exec *domain.Execution, node *domain.Node, st *state.State, interrupt *component.SpawnInterrupt) error {
	tasks := make([]spawn.Task, len(interrupt.Tasks))
	for i, t := range interrupt.Tasks {
		tasks[i] = spawn.Task{WorkflowID: t.WorkflowID, WorkflowSlug: t.WorkflowSlug, InputText: t.InputText}
	}
	childIDs, err := o.spawner.Spawn(ctx, exec, node.ID, spawn.Interrupt{Action: "spawn_and_await", Tasks: tasks})
	if err != nil {
		return fmt.Errorf("orchestrator: spawn children: %w", err)
	}

	st.NodeOutputs[node.ID] = map[string]interface{}{"_wait_children": childIDs}
	if err := o.states.Save(ctx, exec.ExecutionID, st); err != nil {
		return fmt.Errorf("orchestrator: save wait state: %w", err)
	}

	o.writeLog(ctx, exec.ExecutionID, node.ID, domain.LogInterrupted, nil, nil, "", "", 0, 0)
	o.bus.Publish(ctx, eventbus.Event{
		Type:      eventbus.EventExecutionState,
		Channel:   eventbus.ExecutionChannel(exec.ExecutionID),
		Data:      map[string]any{"status": "interrupted", "node_id": node.ID, "children": childIDs},
		Timestamp: time.Now(),
	})

	return o.enqueueChildPoll(ctx, exec.ExecutionID, node.ID)
}

func (o *Orchestrator) writeLog(ctx context.Context, executionID, nodeID string, status domain.LogStatus, input, output json.RawMessage, errMsg, errCode string, retryCount int, duration time.Duration) {
	l := &domain.ExecutionLog{
		ExecutionID: executionID,
		NodeID:      nodeID,
		Status:      status,
		Input:       input,
		Output:      output,
		Error:       errMsg,
		ErrorCode:   errCode,
		RetryCount:  retryCount,
		DurationMs:  duration.Milliseconds(),
		Timestamp:   time.Now(),
	}
	if err := o.logs.Create(ctx, l); err != nil {
		logger.Default().Error("orchestrator: write execution log failed", "execution_id", executionID, "node_id", nodeID, "error", err)
	}
}

func (o *Orchestrator) applyTokenUsage(ctx context.Context, exec *domain.Execution, st *state.State) {
	exec.TotalInputTokens = st.TokenUsage.InputTokens
	exec.TotalOutputTokens = st.TokenUsage.OutputTokens
	exec.TotalCostUSD = st.TokenUsage.CostUSD
	exec.LLMCalls = int(st.TokenUsage.LLMCalls)
	if err := o.executions.Update(ctx, exec); err != nil {
		logger.Default().Warn("orchestrator: update execution token usage failed", "execution_id", exec.ExecutionID, "error", err)
	}
}

// resolveTemplates returns a shallow clone of node with its {{ }}
// placeholders resolved against st, matching spec.md §4.3 step 4: template
// resolution happens fresh on every invocation, never once at build time.
func (o *Orchestrator) resolveTemplates(node *domain.Node, st *state.State) *domain.Node {
	if node.ComponentConfig == nil {
		return node
	}
	eng := template.NewEngine(&template.Context{
		NodeOutputs: st.NodeOutputs,
		Trigger:     st.Trigger,
		UserContext: st.UserContext,
	})

	cfgCopy := *node.ComponentConfig
	cfgCopy.SystemPrompt = eng.ResolveString(cfgCopy.SystemPrompt)
	if len(cfgCopy.ExtraConfig) > 0 {
		var m map[string]interface{}
		if err := json.Unmarshal(cfgCopy.ExtraConfig, &m); err == nil {
			if data, err := json.Marshal(eng.ResolveConfig(m)); err == nil {
				cfgCopy.ExtraConfig = data
			}
		}
	}

	nodeCopy := *node
	nodeCopy.ComponentConfig = &cfgCopy
	return &nodeCopy
}

func nodeMaxRetries(node *domain.Node) int {
	if node.ComponentConfig != nil && node.ComponentConfig.MaxRetries > 0 {
		return node.ComponentConfig.MaxRetries
	}
	return DefaultNodeMaxRetries
}

// backoffDelay grows exponentially from 2s, capped at 5 minutes, matching
// internal/scheduler's fire-retry backoff shape.
func backoffDelay(attempt int) time.Duration {
	d := time.Duration(math.Pow(2, float64(attempt))) * time.Second
	const max = 5 * time.Minute
	if d > max {
		return max
	}
	return d
}

func (o *Orchestrator) enqueueNode(ctx context.Context, executionID, nodeID string, retryCount int) error {
	if err := o.incrActive(ctx, executionID, 1); err != nil {
		return err
	}
	if _, err := o.q.Enqueue(ctx, queue.QueueWorkflows, queue.FuncExecuteNodeJob, executeNodeArgs{
		ExecutionID: executionID, NodeID: nodeID, RetryCount: retryCount,
	}); err != nil {
		o.decrActive(ctx, executionID, 1)
		return fmt.Errorf("orchestrator: enqueue node job: %w", err)
	}
	return nil
}

func (o *Orchestrator) enqueueNodeDelayed(ctx context.Context, executionID, nodeID string, retryCount int, delay time.Duration) error {
	if err := o.incrActive(ctx, executionID, 1); err != nil {
		return err
	}
	if _, err := o.q.EnqueueDelayed(ctx, queue.QueueWorkflows, queue.FuncExecuteNodeJob, executeNodeArgs{
		ExecutionID: executionID, NodeID: nodeID, RetryCount: retryCount,
	}, delay); err != nil {
		o.decrActive(ctx, executionID, 1)
		return fmt.Errorf("orchestrator: enqueue delayed node job: %w", err)
	}
	return nil
}

// enqueueResumedNode re-dispatches a node coming out of a human-confirmation
// suspend without touching the active count: suspendForConfirmation's
// original dispatch never repaid its debt, so this continuation owns it
// already and repays it itself when ExecuteNodeJob finishes handling it.
func (o *Orchestrator) enqueueResumedNode(ctx context.Context, executionID, nodeID string) error {
	if _, err := o.q.Enqueue(ctx, queue.QueueWorkflows, queue.FuncExecuteNodeJob, executeNodeArgs{
		ExecutionID: executionID, NodeID: nodeID, RetryCount: 0,
	}); err != nil {
		return fmt.Errorf("orchestrator: enqueue resumed node job: %w", err)
	}
	return nil
}

// enqueueChildPoll schedules a cleanup_stuck_child_waits_job tick without
// touching the active count: the spawn it polls for already owns the debt.
func (o *Orchestrator) enqueueChildPoll(ctx context.Context, executionID, nodeID string) error {
	_, err := o.q.EnqueueDelayed(ctx, queue.QueueWorkflows, queue.FuncCleanupStuckChildWaitsJob, cleanupArgs{
		ExecutionID: executionID, NodeID: nodeID,
	}, childWaitPollInterval)
	if err != nil {
		return fmt.Errorf("orchestrator: enqueue child poll: %w", err)
	}
	return nil
}
