// Package topology compiles a workflow's persisted nodes and edges into the
// reachable execution DAG for one trigger, mirroring the teacher's
// buildDAG/topologicalSort indexed-lookup shape while adding trigger-scoped
// reachability, a sub-component skip set and loop-body closure.
package topology

import (
	"fmt"
	"sort"

	"github.com/flowforge/core/internal/domain"
)

// dagLabels are the edge labels that participate in the executable DAG;
// llm/tool/output_parser/memory edges connect a node to its sub-components
// and never appear here.
var dagLabels = map[domain.EdgeLabel]bool{
	domain.EdgeLabelControl:    true,
	domain.EdgeLabelLoopBody:   true,
	domain.EdgeLabelLoopReturn: true,
}

// Topology is the compiled, reachable execution DAG for a (workflow,
// trigger) pair.
type Topology struct {
	Nodes            map[string]*domain.Node
	Edges            []*domain.Edge
	EdgesBySource     map[string][]*domain.Edge
	EdgesByTarget     map[string][]*domain.Edge
	IncomingCount    map[string]int
	EntryNodeIDs     []string
	LoopBodies       map[string][]string
	LoopReturnNodes  map[string][]string
	LoopBodyAllNodes map[string][]string
}

// Build compiles workflow into a Topology scoped to triggerNodeID. An empty
// triggerNodeID skips the reachability restriction (step 2), yielding the
// topology over the whole workflow.
func Build(workflow *domain.Workflow, triggerNodeID string) (*Topology, error) {
	nodes, edges := loadDAGEdges(workflow)

	if triggerNodeID != "" {
		nodes, edges = restrictToReachable(nodes, edges, triggerNodeID)
	}

	executable, _ := partition(nodes)
	if len(executable) == 0 {
		return nil, fmt.Errorf("topology: workflow %s has no executable nodes", workflow.ID)
	}

	edges = restrictToExecutable(edges, executable)

	entryIDs := selectEntryNodes(workflow, executable, edges)

	t := &Topology{
		Nodes:            executable,
		Edges:            edges,
		EdgesBySource:    make(map[string][]*domain.Edge),
		EdgesByTarget:    make(map[string][]*domain.Edge),
		IncomingCount:    make(map[string]int),
		EntryNodeIDs:     entryIDs,
		LoopBodies:       make(map[string][]string),
		LoopReturnNodes:  make(map[string][]string),
		LoopBodyAllNodes: make(map[string][]string),
	}

	for id := range executable {
		t.IncomingCount[id] = 0
	}

	for _, e := range edges {
		t.EdgesBySource[e.SourceNodeID] = append(t.EdgesBySource[e.SourceNodeID], e)
		t.EdgesByTarget[e.TargetNodeID] = append(t.EdgesByTarget[e.TargetNodeID], e)
		if !e.IsLoopReturn() {
			t.IncomingCount[e.TargetNodeID]++
		}
		if e.IsLoopReturn() {
			t.LoopReturnNodes[e.TargetNodeID] = append(t.LoopReturnNodes[e.TargetNodeID], e.SourceNodeID)
		}
	}

	for id, n := range executable {
		if n.ComponentType != domain.ComponentLoop {
			continue
		}
		var bodyTargets []string
		for _, e := range t.EdgesBySource[id] {
			if e.IsLoopBody() {
				bodyTargets = append(bodyTargets, e.TargetNodeID)
			}
		}
		t.LoopBodies[id] = bodyTargets
		t.LoopBodyAllNodes[id] = bodyClosure(t, id, bodyTargets)
	}

	return t, nil
}

// loadDAGEdges returns the workflow's nodes keyed by ID and the subset of
// edges whose label participates in the executable DAG (step 1).
func loadDAGEdges(workflow *domain.Workflow) (map[string]*domain.Node, []*domain.Edge) {
	nodes := make(map[string]*domain.Node, len(workflow.Nodes))
	for _, n := range workflow.Nodes {
		nodes[n.ID] = n
	}

	var edges []*domain.Edge
	for _, e := range workflow.Edges {
		if dagLabels[e.NormalizedLabel()] {
			edges = append(edges, e)
		}
	}
	return nodes, edges
}

// restrictToReachable computes forward reachability from triggerNodeID over
// direct edges and condition_mapping targets, then restricts nodes/edges to
// that reachable set (step 2). The trigger node itself is included so
// downstream entry selection can find edges sourced from it.
func restrictToReachable(nodes map[string]*domain.Node, edges []*domain.Edge, triggerNodeID string) (map[string]*domain.Node, []*domain.Edge) {
	adj := make(map[string][]string)
	for _, e := range edges {
		adj[e.SourceNodeID] = append(adj[e.SourceNodeID], e.TargetNodeID)
		for _, target := range e.ConditionMapping {
			adj[e.SourceNodeID] = append(adj[e.SourceNodeID], target)
		}
	}

	reachable := map[string]bool{triggerNodeID: true}
	queue := []string{triggerNodeID}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range adj[cur] {
			if !reachable[next] {
				reachable[next] = true
				queue = append(queue, next)
			}
		}
	}

	restrictedNodes := make(map[string]*domain.Node)
	for id, n := range nodes {
		if reachable[id] {
			restrictedNodes[id] = n
		}
	}

	var restrictedEdges []*domain.Edge
	for _, e := range edges {
		if reachable[e.SourceNodeID] && reachable[e.TargetNodeID] {
			restrictedEdges = append(restrictedEdges, e)
		}
	}

	return restrictedNodes, restrictedEdges
}

// partition splits nodes into the executable set and the skip set: trigger_*
// nodes and sub-component types never occupy a slot in the execution DAG
// (step 3).
func partition(nodes map[string]*domain.Node) (executable, skipped map[string]*domain.Node) {
	executable = make(map[string]*domain.Node)
	skipped = make(map[string]*domain.Node)
	for id, n := range nodes {
		if n.ComponentType.IsTrigger() || n.ComponentType.IsSubComponent() {
			skipped[id] = n
		} else {
			executable[id] = n
		}
	}
	return executable, skipped
}

// restrictToExecutable drops edges whose source or target fell into the skip
// set (step 6).
func restrictToExecutable(edges []*domain.Edge, executable map[string]*domain.Node) []*domain.Edge {
	var out []*domain.Edge
	for _, e := range edges {
		if executable[e.SourceNodeID] != nil && executable[e.TargetNodeID] != nil {
			out = append(out, e)
		}
	}
	return out
}

// selectEntryNodes implements step 5: explicit is_entry_point nodes win; else
// the targets of trigger-sourced edges (evaluated against the *original*
// workflow edges, since trigger nodes are never in the executable set); else
// the lowest-id executable node.
func selectEntryNodes(workflow *domain.Workflow, executable map[string]*domain.Node, edges []*domain.Edge) []string {
	var explicit []string
	for id, n := range executable {
		if n.IsEntryPoint {
			explicit = append(explicit, id)
		}
	}
	if len(explicit) > 0 {
		sort.Strings(explicit)
		return explicit
	}

	triggerSources := make(map[string]bool)
	for _, n := range workflow.Nodes {
		if n.ComponentType.IsTrigger() {
			triggerSources[n.ID] = true
		}
	}
	var fromTrigger []string
	seen := make(map[string]bool)
	for _, e := range workflow.Edges {
		if triggerSources[e.SourceNodeID] && executable[e.TargetNodeID] != nil && !seen[e.TargetNodeID] {
			fromTrigger = append(fromTrigger, e.TargetNodeID)
			seen[e.TargetNodeID] = true
		}
	}
	if len(fromTrigger) > 0 {
		sort.Strings(fromTrigger)
		return fromTrigger
	}

	var ids []string
	for id := range executable {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if len(ids) == 0 {
		return nil
	}
	return []string{ids[0]}
}

// bodyClosure computes the BFS closure of a loop's body subgraph over direct
// edges, stopping at the loop node itself so the closure stays bounded
// (step 7).
func bodyClosure(t *Topology, loopID string, bodyTargets []string) []string {
	visited := map[string]bool{}
	var order []string
	queue := append([]string{}, bodyTargets...)
	for _, id := range bodyTargets {
		visited[id] = true
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		order = append(order, cur)

		if cur == loopID {
			continue
		}
		for _, e := range t.EdgesBySource[cur] {
			if e.IsLoopBody() || e.IsLoopReturn() {
				continue
			}
			if !visited[e.TargetNodeID] {
				visited[e.TargetNodeID] = true
				queue = append(queue, e.TargetNodeID)
			}
		}
	}

	return order
}

// GetNode returns a node from the compiled topology.
func (t *Topology) GetNode(id string) (*domain.Node, bool) {
	n, ok := t.Nodes[id]
	return n, ok
}

// TotalIncoming sums incoming_count across every node, used by the topology
// correctness invariant (sum(incoming_count) == |edges excluding
// loop_return|).
func (t *Topology) TotalIncoming() int {
	total := 0
	for _, c := range t.IncomingCount {
		total += c
	}
	return total
}
