package component

import (
	"context"

	"github.com/flowforge/core/internal/condition"
	"github.com/flowforge/core/internal/domain"
	"github.com/flowforge/core/internal/state"
)

// routerConfig is the extra_config shape shared by router and switch nodes:
// a rule list evaluated in order, first match wins, with an optional
// fallback to "__other__".
type routerConfig struct {
	Rules    []domain.RouteRule `json:"rules"`
	Fallback bool               `json:"fallback"`
}

func toConditionRules(rules []domain.RouteRule) []condition.Rule {
	out := make([]condition.Rule, len(rules))
	for i, r := range rules {
		out[i] = condition.Rule{ID: r.ID, Field: r.Field, Operator: r.Operator, Value: r.Value}
	}
	return out
}

// RouterFactory builds router and switch runners: both evaluate a rule list
// against the running state and write the winning rule's ID to `_route`.
type RouterFactory struct{}

// Build implements Factory.
func (RouterFactory) Build(node *domain.Node) (Runner, error) {
	var cfg routerConfig
	if err := extraConfig(node, &cfg); err != nil {
		return nil, err
	}
	rules := toConditionRules(cfg.Rules)

	return func(_ context.Context, s *state.State) (Delta, error) {
		route := condition.FirstMatch(rules, StateAsMap(s), cfg.Fallback)
		return Delta{"_route": route}, nil
	}, nil
}
