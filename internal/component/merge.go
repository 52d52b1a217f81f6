package component

import (
	"context"
	"fmt"

	"github.com/flowforge/core/internal/domain"
	"github.com/flowforge/core/internal/state"
)

const (
	mergeModeAppend  = "append"
	mergeModeCombine = "combine"
)

// mergeConfig names the source nodes whose outputs are combined and the mode
// used to combine them.
type mergeConfig struct {
	SourceNodes []string `json:"source_nodes"`
	Mode        string   `json:"mode"`
}

// MergeFactory builds merge runners: `append` concatenates source outputs
// into a flat list, `combine` dict-merges them (later source wins per key).
type MergeFactory struct{}

// Build implements Factory.
func (MergeFactory) Build(node *domain.Node) (Runner, error) {
	var cfg mergeConfig
	if err := extraConfig(node, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.SourceNodes) == 0 {
		return nil, fmt.Errorf("merge %s: source_nodes is required", node.ID)
	}
	mode := cfg.Mode
	if mode == "" {
		mode = mergeModeAppend
	}

	return func(_ context.Context, s *state.State) (Delta, error) {
		var output interface{}
		switch mode {
		case mergeModeCombine:
			combined := make(map[string]interface{})
			for _, src := range cfg.SourceNodes {
				if m, ok := s.NodeOutputs[src].(map[string]interface{}); ok {
					for k, v := range m {
						combined[k] = v
					}
				}
			}
			output = combined
		case mergeModeAppend:
			var list []interface{}
			for _, src := range cfg.SourceNodes {
				list = append(list, s.NodeOutputs[src])
			}
			output = list
		default:
			return nil, fmt.Errorf("merge %s: unknown mode %q", node.ID, mode)
		}

		return Delta{
			"output":       output,
			"node_outputs": map[string]interface{}{node.ID: output},
		}, nil
	}, nil
}
