package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/flowforge/core/internal/component"
	"github.com/flowforge/core/internal/domain"
	"github.com/flowforge/core/internal/eventbus"
	"github.com/flowforge/core/internal/logger"
	"github.com/flowforge/core/internal/spawn"
	"github.com/flowforge/core/internal/state"
	"github.com/flowforge/core/internal/topology"
)

// pollChildWait implements spec.md §4.6 step 4 from the orchestrator side:
// check whether every child spawned by nodeID has reached a terminal
// state; if not, reschedule itself. Once ready, an agent node re-enters its
// own Runner with the ordered results staged as the pending spawn_and_await
// call's return value, so the LLM reasons over them for another turn
// (spec.md §4.6 step 4's "calling its agent's checkpointer with the
// results as the tool's return value"); the dedicated sub-workflow
// component type has no reasoning loop to re-enter, so its result is
// folded straight into the node's output and the DAG walk continues past
// it.
func (o *Orchestrator) pollChildWait(ctx context.Context, executionID, nodeID string) error {
	exec, err := o.executions.FindByID(ctx, executionID)
	if err != nil {
		return fmt.Errorf("orchestrator: load execution %s: %w", executionID, err)
	}
	if exec.Status.Terminal() {
		return nil
	}

	st, err := o.states.Load(ctx, executionID)
	if err != nil {
		return fmt.Errorf("orchestrator: load state: %w", err)
	}

	childIDs, ok := waitingChildren(st, nodeID)
	if !ok {
		logger.Default().Warn("orchestrator: child poll with no wait marker", "execution_id", executionID, "node_id", nodeID)
		return nil
	}

	results, ready, err := o.spawner.CollectIfReady(ctx, childIDs)
	if err != nil {
		return fmt.Errorf("orchestrator: collect child results: %w", err)
	}
	if !ready {
		return o.enqueueChildPoll(ctx, executionID, nodeID)
	}

	wf, err := o.workflows.FindByID(ctx, exec.WorkflowID)
	if err != nil {
		return fmt.Errorf("orchestrator: load workflow %s: %w", exec.WorkflowID, err)
	}
	topo, err := o.topologies.GetOrBuild(wf, exec.TriggerNodeID)
	if err != nil {
		return fmt.Errorf("orchestrator: build topology: %w", err)
	}
	node, ok := topo.GetNode(nodeID)
	if !ok {
		return fmt.Errorf("orchestrator: node %s not found in topology", nodeID)
	}

	if node.ComponentType == domain.ComponentAgent {
		return o.resumeAgentAfterSpawn(ctx, exec, node, st, topo, nodeID, results)
	}

	anyFailed := false
	for _, r := range results {
		if r.Status == domain.ExecutionFailed {
			anyFailed = true
		}
	}
	resultsJSON, _ := json.Marshal(results)
	delta := component.Delta{
		"output":       results,
		"node_outputs": map[string]interface{}{nodeID: results},
		"messages":     []interface{}{state.Message{Role: "tool", Content: string(resultsJSON)}},
	}
	if anyFailed {
		delta["_route"] = "child_failed"
	}

	next := state.Merge(st, delta)
	if err := o.states.Save(ctx, executionID, next); err != nil {
		return fmt.Errorf("orchestrator: save state: %w", err)
	}

	exec.Status = domain.ExecutionRunning
	if err := o.executions.Update(ctx, exec); err != nil {
		return fmt.Errorf("orchestrator: mark execution running: %w", err)
	}
	o.applyTokenUsage(ctx, exec, next)

	status := domain.LogSuccess
	if anyFailed {
		status = domain.LogFailed
	}
	o.writeLog(ctx, executionID, nodeID, status, nil, resultsJSON, "", string(errorcodeChildFailed(anyFailed)), 0, 0)

	o.bus.Publish(ctx, eventbus.Event{
		Type:      eventbus.EventNodeStatus,
		Channel:   eventbus.ExecutionChannel(executionID),
		Data:      map[string]any{"node_id": nodeID, "status": "success", "children_resolved": len(results)},
		Timestamp: time.Now(),
	})

	o.clearDispatchMarker(ctx, executionID, nodeID)
	targets := o.nextNodes(ctx, executionID, node, next, topo)
	for _, t := range targets {
		if err := o.enqueueNode(ctx, executionID, t, 0); err != nil {
			logger.Default().Error("orchestrator: enqueue next node failed", "execution_id", executionID, "node_id", t, "error", err)
		}
	}

	// This repays the one active-count debt that has been outstanding
	// since suspendForChildWait first suspended nodeID.
	o.decrActive(ctx, executionID, 1)
	return nil
}

// resumeAgentAfterSpawn stages the ordered spawn_and_await results where
// the agent's Runner looks for them and re-enters it, instead of
// synthesizing the node's output here the way the sub-workflow component
// type's direct-synthesis path does. The agent's own checkpoint (written
// when it suspended) carries the conversation back to the pending tool
// call; component.AgentFactory folds results in as that call's return
// value and takes another reasoning turn.
func (o *Orchestrator) resumeAgentAfterSpawn(ctx context.Context, exec *domain.Execution, node *domain.Node, st *state.State, topo *topology.Topology, nodeID string, results []spawn.Result) error {
	st.NodeOutputs[nodeID] = map[string]interface{}{component.SpawnResultsKey: results}

	exec.Status = domain.ExecutionRunning
	if err := o.executions.Update(ctx, exec); err != nil {
		return fmt.Errorf("orchestrator: mark execution running: %w", err)
	}
	o.clearDispatchMarker(ctx, exec.ExecutionID, nodeID)

	return o.runNodeComponent(ctx, exec, node, st, topo, 0)
}

func errorcodeChildFailed(anyFailed bool) string {
	if anyFailed {
		return "CHILD_FAILED"
	}
	return ""
}

func waitingChildren(st *state.State, nodeID string) ([]string, bool) {
	raw, ok := st.NodeOutputs[nodeID].(map[string]interface{})
	if !ok {
		return nil, false
	}
	listRaw, ok := raw["_wait_children"]
	if !ok {
		return nil, false
	}
	items, ok := listRaw.([]interface{})
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out, true
}
