package orchestrator

import (
	"context"

	"github.com/flowforge/core/internal/domain"
	"github.com/flowforge/core/internal/logger"
	"github.com/flowforge/core/internal/state"
	"github.com/flowforge/core/internal/topology"
)

// nextNodes implements spec.md §4.3 step 8's successor-selection: loop
// iteration driving takes precedence over ordinary edge routing, since a
// loop body's own outgoing edges describe the iteration's internal
// wiring, not the loop's eventual continuation.
func (o *Orchestrator) nextNodes(ctx context.Context, executionID string, node *domain.Node, st *state.State, topo *topology.Topology) []string {
	if loopID, ok := loopReturnFor(topo, node.ID); ok {
		return o.driveLoopIteration(ctx, executionID, loopID, st, topo)
	}
	if node.ComponentType == domain.ComponentLoop {
		return o.driveLoopIteration(ctx, executionID, node.ID, st, topo)
	}
	return o.readyTargets(ctx, executionID, o.resolveEdgeTargets(node.ID, st, topo, false), topo)
}

// loopReturnFor reports whether nodeID is one of the loop_return sources
// feeding loopID back for its next iteration.
func loopReturnFor(topo *topology.Topology, nodeID string) (string, bool) {
	for loopID, sources := range topo.LoopReturnNodes {
		for _, s := range sources {
			if s == nodeID {
				return loopID, true
			}
		}
	}
	return "", false
}

// driveLoopIteration advances loopID's cursor and either dispatches the
// next iteration's body or, once items are exhausted, continues past the
// loop via its own non-loop_body edges.
func (o *Orchestrator) driveLoopIteration(ctx context.Context, executionID, loopID string, st *state.State, topo *topology.Topology) []string {
	ls := st.LoopState[loopID]
	if ls == nil || len(ls.Items) == 0 {
		return o.readyTargets(ctx, executionID, o.resolveEdgeTargets(loopID, st, topo, true), topo)
	}

	nextIndex := ls.Index
	if loopID != st.CurrentNode {
		// Reached via a loop_return edge: this generation's item was
		// already consumed, advance to the next one.
		nextIndex++
	}
	if nextIndex >= len(ls.Items) {
		return o.readyTargets(ctx, executionID, o.resolveEdgeTargets(loopID, st, topo, true), topo)
	}

	ls.Index = nextIndex
	st.NodeOutputs[loopID] = ls.Items[nextIndex]
	if err := o.states.Save(ctx, executionID, st); err != nil {
		logger.Default().Error("orchestrator: save loop state failed", "execution_id", executionID, "loop_id", loopID, "error", err)
	}
	return o.readyTargets(ctx, executionID, topo.LoopBodies[loopID], topo)
}

// resolveEdgeTargets returns the raw (unready-gated) candidate node IDs
// leaving sourceID: condition_mapping edges are a routing table keyed by
// state.Route, independent of the edge's own TargetNodeID; plain
// conditional edges match on ConditionValue equality to Route or, failing
// that, an expr-lang boolean evaluated against the source node's output.
func (o *Orchestrator) resolveEdgeTargets(sourceID string, st *state.State, topo *topology.Topology, excludeLoopBody bool) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}

	for _, e := range topo.EdgesBySource[sourceID] {
		if e.IsLoopReturn() {
			continue
		}
		if excludeLoopBody && e.IsLoopBody() {
			continue
		}

		if len(e.ConditionMapping) > 0 {
			if target, ok := e.ConditionMapping[st.Route]; ok {
				add(target)
			}
			continue
		}

		switch e.EdgeType {
		case domain.EdgeDirect:
			add(e.TargetNodeID)
		case domain.EdgeConditional:
			if o.edgeMatches(e, st) {
				add(e.TargetNodeID)
			}
		}
	}
	return out
}

func (o *Orchestrator) edgeMatches(e *domain.Edge, st *state.State) bool {
	if e.ConditionValue == "" {
		return true
	}
	if e.ConditionValue == st.Route {
		return true
	}
	ok, err := o.edges.Evaluate(e.ConditionValue, e.SourceNodeID, st.NodeOutputs[e.SourceNodeID])
	return err == nil && ok
}

// readyTargets filters candidates down to those whose predecessors have
// all finished (fan-in join gating) and claims each survivor's dispatch
// slot so a concurrent sibling branch can't double-dispatch it.
func (o *Orchestrator) readyTargets(ctx context.Context, executionID string, candidates []string, topo *topology.Topology) []string {
	var out []string
	for _, id := range candidates {
		ready, err := o.allPredecessorsDone(ctx, executionID, id, topo)
		if err != nil {
			logger.Default().Error("orchestrator: join-readiness check failed", "execution_id", executionID, "node_id", id, "error", err)
			continue
		}
		if !ready {
			continue
		}
		claimed, err := o.markDispatched(ctx, executionID, id)
		if err != nil {
			logger.Default().Error("orchestrator: claim dispatch slot failed", "execution_id", executionID, "node_id", id, "error", err)
			continue
		}
		if claimed {
			out = append(out, id)
		}
	}
	return out
}

// allPredecessorsDone reports whether every non-loop_return predecessor of
// nodeID has a successful terminal log row, implementing the fan-in join
// spec.md §4.3 step 8 requires before a multi-incoming node dispatches.
func (o *Orchestrator) allPredecessorsDone(ctx context.Context, executionID, nodeID string, topo *topology.Topology) (bool, error) {
	for _, e := range topo.EdgesByTarget[nodeID] {
		if e.IsLoopReturn() {
			continue
		}
		log, err := o.logs.FindLatestByNode(ctx, executionID, e.SourceNodeID)
		if err != nil {
			return false, err
		}
		if log == nil || log.Status != domain.LogSuccess {
			return false, nil
		}
	}
	return true, nil
}
