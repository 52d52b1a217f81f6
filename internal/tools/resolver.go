package tools

import (
	"context"
	"fmt"

	"github.com/flowforge/core/internal/component"
	"github.com/flowforge/core/internal/domain"
)

// WorkflowLoader is the narrow slice of storage.WorkflowRepository the
// resolver needs: loading one workflow's full node/edge set by ID.
type WorkflowLoader interface {
	FindByID(ctx context.Context, id string) (*domain.Workflow, error)
}

// Resolver returns the component.ToolResolver an agent's Factory.Build uses
// to discover its bound tools: every outgoing `tool` (or legacy `memory`)
// edge from the agent node, resolved through reg. It loads the owning
// workflow fresh by node.WorkflowID on every call rather than closing over
// one workflow's edges, since the component.Registry an agent factory is
// registered into is process-wide and shared across every workflow the
// orchestrator runs (spec.md §3's invariant scopes node IDs to a single
// workflow, not globally). Built over the workflow's raw, unfiltered edge
// list since internal/topology strips sub-component edges from the
// executable DAG entirely.
func Resolver(workflows WorkflowLoader, reg *Registry) component.ToolResolver {
	return func(node *domain.Node) ([]component.Tool, error) {
		wf, err := workflows.FindByID(context.Background(), node.WorkflowID)
		if err != nil {
			return nil, fmt.Errorf("tools: load workflow %s: %w", node.WorkflowID, err)
		}
		nodesByID := make(map[string]*domain.Node, len(wf.Nodes))
		for _, n := range wf.Nodes {
			nodesByID[n.ID] = n
		}

		var out []component.Tool
		for _, e := range wf.Edges {
			if e.SourceNodeID != node.ID || e.NormalizedLabel() != domain.EdgeLabelTool {
				continue
			}
			target, ok := nodesByID[e.TargetNodeID]
			if !ok {
				return nil, fmt.Errorf("tools: edge %s references unknown target node %s", e.ID, e.TargetNodeID)
			}
			tool, err := reg.Build(target)
			if err != nil {
				return nil, fmt.Errorf("tools: building tool for node %s: %w", target.ID, err)
			}
			out = append(out, tool)
		}
		return out, nil
	}
}
