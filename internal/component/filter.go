package component

import (
	"context"
	"fmt"

	"github.com/flowforge/core/internal/condition"
	"github.com/flowforge/core/internal/domain"
	"github.com/flowforge/core/internal/state"
)

const (
	filterMatchAll = "all"
	filterMatchAny = "any"
)

// filterConfig names the source list and the rule set applied to each item.
type filterConfig struct {
	SourceNode  string             `json:"source_node"`
	SourceField string             `json:"source_field"`
	Rules       []domain.RouteRule `json:"rules"`
	Match       string             `json:"match"`
}

// FilterFactory builds filter runners: evaluates the rule set against each
// item of a source list, keeping items that satisfy the configured match
// mode (all rules, or any rule).
type FilterFactory struct{}

// Build implements Factory.
func (FilterFactory) Build(node *domain.Node) (Runner, error) {
	var cfg filterConfig
	if err := extraConfig(node, &cfg); err != nil {
		return nil, err
	}
	if cfg.SourceNode == "" || cfg.SourceField == "" {
		return nil, fmt.Errorf("filter %s: source_node and source_field are required", node.ID)
	}
	match := cfg.Match
	if match == "" {
		match = filterMatchAll
	}
	rules := toConditionRules(cfg.Rules)

	return func(_ context.Context, s *state.State) (Delta, error) {
		items, err := sourceListField(s, cfg.SourceNode, cfg.SourceField)
		if err != nil {
			return nil, err
		}

		var kept []interface{}
		for _, item := range items {
			itemState := map[string]interface{}{"item": item}
			if itemMap, ok := item.(map[string]interface{}); ok {
				itemState = itemMap
			}
			if matches(rules, itemState, match) {
				kept = append(kept, item)
			}
		}

		return Delta{
			"output":       kept,
			"node_outputs": map[string]interface{}{node.ID: map[string]interface{}{"items": kept}},
		}, nil
	}, nil
}

func matches(rules []condition.Rule, itemState map[string]interface{}, mode string) bool {
	if len(rules) == 0 {
		return true
	}
	if mode == filterMatchAny {
		for _, r := range rules {
			if condition.Eval(r, itemState) {
				return true
			}
		}
		return false
	}
	for _, r := range rules {
		if !condition.Eval(r, itemState) {
			return false
		}
	}
	return true
}
