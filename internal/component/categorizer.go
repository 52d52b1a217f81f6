package component

import (
	"context"

	"github.com/flowforge/core/internal/domain"
	"github.com/flowforge/core/internal/state"
)

// Classifier is the LLM-backed dependency categorizer nodes call to produce
// a category name. Kept as a narrow interface so tests can substitute a
// deterministic fake instead of a real provider.
type Classifier interface {
	Classify(ctx context.Context, systemPrompt string, input map[string]interface{}) (category string, usage state.TokenUsage, err error)
}

// CategorizerFactory builds categorizer runners bound to a Classifier.
type CategorizerFactory struct {
	Classifier Classifier
}

// Build implements Factory.
func (f CategorizerFactory) Build(node *domain.Node) (Runner, error) {
	systemPrompt := ""
	if node.ComponentConfig != nil {
		systemPrompt = node.ComponentConfig.SystemPrompt
	}

	return func(ctx context.Context, s *state.State) (Delta, error) {
		category, usage, err := f.Classifier.Classify(ctx, systemPrompt, StateAsMap(s))
		if err != nil {
			return nil, err
		}
		return Delta{
			"_route": category,
			"_token_usage": map[string]interface{}{
				"input_tokens":  float64(usage.InputTokens),
				"output_tokens": float64(usage.OutputTokens),
				"total_tokens":  float64(usage.TotalTokens),
				"cost_usd":      usage.CostUSD,
			},
		}, nil
	}, nil
}
