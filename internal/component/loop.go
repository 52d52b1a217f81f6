package component

import (
	"context"
	"fmt"

	"github.com/flowforge/core/internal/domain"
	"github.com/flowforge/core/internal/state"
)

// loopConfig names the source node/field the loop reads its item list from.
type loopConfig struct {
	SourceNode  string `json:"source_node"`
	SourceField string `json:"source_field"`
}

// LoopFactory builds loop runners: each invocation re-reads the source list
// and signals the orchestrator, via `_loop`, to launch the loop_body targets
// once per item. Iteration bookkeeping (cursor, rejoin) lives in
// internal/orchestrator, which owns the topology's loop_body/loop_return
// edges.
type LoopFactory struct{}

// Build implements Factory.
func (LoopFactory) Build(node *domain.Node) (Runner, error) {
	var cfg loopConfig
	if err := extraConfig(node, &cfg); err != nil {
		return nil, err
	}
	if cfg.SourceNode == "" || cfg.SourceField == "" {
		return nil, fmt.Errorf("loop %s: source_node and source_field are required", node.ID)
	}

	return func(_ context.Context, s *state.State) (Delta, error) {
		items, err := sourceListField(s, cfg.SourceNode, cfg.SourceField)
		if err != nil {
			return nil, err
		}
		return Delta{"_loop": map[string]interface{}{"items": items}}, nil
	}, nil
}

func sourceListField(s *state.State, sourceNode, field string) ([]interface{}, error) {
	out, ok := s.NodeOutputs[sourceNode]
	if !ok {
		return nil, fmt.Errorf("loop: source node %q has no output", sourceNode)
	}
	m, ok := out.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("loop: source node %q output is not a map", sourceNode)
	}
	raw, ok := m[field]
	if !ok {
		return nil, fmt.Errorf("loop: field %q not found on node %q output", field, sourceNode)
	}
	items, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("loop: field %q on node %q is not a list", field, sourceNode)
	}
	return items, nil
}
