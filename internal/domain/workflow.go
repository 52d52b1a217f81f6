package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Workflow is a named, slugged container owning an ordered set of Nodes and
// Edges. Ownership is single-user; ActiveCollaborators is intentionally not
// modeled here (identity/SSO is out of scope).
type Workflow struct {
	ID                    string          `json:"id"`
	Slug                  string          `json:"slug"`
	Name                  string          `json:"name"`
	Description           string          `json:"description,omitempty"`
	OwnerID               string          `json:"owner_id"`
	IsActive              bool            `json:"is_active"`
	IsDefault             bool            `json:"is_default"`
	Tags                  []string        `json:"tags,omitempty"`
	MaxExecutionSeconds   int             `json:"max_execution_seconds"`
	InputSchema           json.RawMessage `json:"input_schema,omitempty"`
	OutputSchema          json.RawMessage `json:"output_schema,omitempty"`
	ErrorHandlerWorkflowID string         `json:"error_handler_workflow_id,omitempty"`
	Nodes                 []*Node         `json:"nodes"`
	Edges                 []*Edge         `json:"edges"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
	DeletedAt             *time.Time      `json:"deleted_at,omitempty"`
}

// DefaultMaxExecutionSeconds is applied when a workflow does not set its own.
const DefaultMaxExecutionSeconds = 600

// Deleted reports whether the workflow carries a tombstone timestamp.
func (w *Workflow) Deleted() bool { return w.DeletedAt != nil }

// Node is a single entry in a workflow's topology, uniquely identified by
// (workflow_id, node_id). Flags mirror the orchestrator's suspension points.
type Node struct {
	ID              string        `json:"id"`
	WorkflowID      string        `json:"workflow_id"`
	ComponentType   ComponentType `json:"component_type"`
	ComponentConfig *ComponentConfig `json:"component_config,omitempty"`
	SubworkflowID   string        `json:"subworkflow_id,omitempty"`
	CodeBlockID     string        `json:"code_block_id,omitempty"`
	IsEntryPoint    bool          `json:"is_entry_point"`
	InterruptBefore bool          `json:"interrupt_before"`
	InterruptAfter  bool          `json:"interrupt_after"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// EdgeType distinguishes unconditional from route-selecting edges.
type EdgeType string

const (
	EdgeDirect      EdgeType = "direct"
	EdgeConditional EdgeType = "conditional"
)

// EdgeLabel marks the lateral role a sub-component edge plays, or "" for
// ordinary control flow.
type EdgeLabel string

const (
	EdgeLabelControl      EdgeLabel = ""
	EdgeLabelLLM          EdgeLabel = "llm"
	EdgeLabelTool         EdgeLabel = "tool"
	EdgeLabelOutputParser EdgeLabel = "output_parser"
	EdgeLabelLoopBody     EdgeLabel = "loop_body"
	EdgeLabelLoopReturn   EdgeLabel = "loop_return"
	// EdgeLabelMemory is a legacy alias for EdgeLabelTool, recognized on read
	// by internal/topology.
	EdgeLabelMemory EdgeLabel = "memory"
)

// Edge is a directed connection between two nodes of one workflow.
type Edge struct {
	ID               string            `json:"id"`
	WorkflowID       string            `json:"workflow_id"`
	SourceNodeID     string            `json:"source_node_id"`
	TargetNodeID     string            `json:"target_node_id"`
	EdgeType         EdgeType          `json:"edge_type"`
	EdgeLabel        EdgeLabel         `json:"edge_label,omitempty"`
	ConditionValue   string            `json:"condition_value,omitempty"`
	ConditionMapping map[string]string `json:"condition_mapping,omitempty"`
	Priority         int               `json:"priority"`
}

// NormalizedLabel resolves the legacy "memory" alias to "tool".
func (e *Edge) NormalizedLabel() EdgeLabel {
	if e.EdgeLabel == EdgeLabelMemory {
		return EdgeLabelTool
	}
	return e.EdgeLabel
}

// IsLoopBody reports whether this edge feeds a loop's body subgraph.
func (e *Edge) IsLoopBody() bool { return e.EdgeLabel == EdgeLabelLoopBody }

// IsLoopReturn reports whether this edge rejoins a loop iteration.
func (e *Edge) IsLoopReturn() bool { return e.EdgeLabel == EdgeLabelLoopReturn }

// Validate checks workflow-level structural invariants: unique node IDs,
// edges referencing existing nodes. Node/edge/resource-level checks are
// delegated to their own Validate methods.
func (w *Workflow) Validate() error {
	if w.Name == "" {
		return &ValidationError{Field: "name", Message: "name is required"}
	}
	if w.Slug == "" {
		return &ValidationError{Field: "slug", Message: "slug is required"}
	}
	if len(w.Nodes) == 0 {
		return &ValidationError{Field: "nodes", Message: "at least one node is required"}
	}

	nodeIDs := make(map[string]bool, len(w.Nodes))
	for _, n := range w.Nodes {
		if err := n.Validate(); err != nil {
			return err
		}
		if nodeIDs[n.ID] {
			return &ValidationError{Field: "nodes", Message: fmt.Sprintf("duplicate node ID: %s", n.ID)}
		}
		nodeIDs[n.ID] = true
	}

	for _, e := range w.Edges {
		if err := e.Validate(); err != nil {
			return err
		}
		if !nodeIDs[e.SourceNodeID] {
			return &ValidationError{Field: "edges", Message: fmt.Sprintf("edge references non-existent source node: %s", e.SourceNodeID)}
		}
		if !nodeIDs[e.TargetNodeID] {
			return &ValidationError{Field: "edges", Message: fmt.Sprintf("edge references non-existent target node: %s", e.TargetNodeID)}
		}
	}

	return nil
}

// Validate checks the node's required fields and enum membership.
func (n *Node) Validate() error {
	if n.ID == "" {
		return &ValidationError{Field: "id", Message: "node ID is required"}
	}
	if !n.ComponentType.Valid() {
		return &ValidationError{Field: "component_type", Message: fmt.Sprintf("unknown component type: %s", n.ComponentType)}
	}
	return nil
}

// Validate checks the edge's required fields and the loop/condition mutual
// exclusion invariant (a loop-body edge carries no condition).
func (e *Edge) Validate() error {
	if e.ID == "" {
		return &ValidationError{Field: "id", Message: "edge ID is required"}
	}
	if e.SourceNodeID == "" || e.TargetNodeID == "" {
		return &ValidationError{Field: "edge", Message: "source and target node IDs are required"}
	}
	if e.SourceNodeID == e.TargetNodeID {
		return &ValidationError{Field: "edge", Message: "self-loop edges are not allowed"}
	}
	if e.EdgeType == EdgeConditional && e.ConditionValue == "" && len(e.ConditionMapping) == 0 {
		return &ValidationError{Field: "edge", Message: "conditional edge requires a condition_value or condition_mapping"}
	}
	if e.IsLoopBody() && (e.ConditionValue != "" || len(e.ConditionMapping) > 0) {
		return &ValidationError{Field: "edge", Message: "loop_body edge cannot carry a condition"}
	}
	return nil
}

// GetNode returns a node by ID.
func (w *Workflow) GetNode(nodeID string) (*Node, error) {
	for _, n := range w.Nodes {
		if n.ID == nodeID {
			return n, nil
		}
	}
	return nil, ErrNodeNotFound
}

// GetEdge returns an edge by ID.
func (w *Workflow) GetEdge(edgeID string) (*Edge, error) {
	for _, e := range w.Edges {
		if e.ID == edgeID {
			return e, nil
		}
	}
	return nil, ErrEdgeNotFound
}

// Clone returns a deep copy of the workflow via a JSON round-trip, matching
// the teacher's Clone semantics.
func (w *Workflow) Clone() (*Workflow, error) {
	data, err := json.Marshal(w)
	if err != nil {
		return nil, err
	}
	var clone Workflow
	if err := json.Unmarshal(data, &clone); err != nil {
		return nil, err
	}
	return &clone, nil
}
