package component

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/core/internal/domain"
	"github.com/flowforge/core/internal/state"
)

type fakeClassifier struct {
	category string
	usage    state.TokenUsage
	err      error
	gotInput map[string]interface{}
}

func (f *fakeClassifier) Classify(ctx context.Context, systemPrompt string, input map[string]interface{}) (string, state.TokenUsage, error) {
	f.gotInput = input
	return f.category, f.usage, f.err
}

func TestCategorizerFactory_WritesRouteAndTokenUsage(t *testing.T) {
	classifier := &fakeClassifier{category: "billing", usage: state.TokenUsage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15, CostUSD: 0.02}}
	node := &domain.Node{ID: "cat1", ComponentConfig: &domain.ComponentConfig{SystemPrompt: "classify this"}}
	runner, err := CategorizerFactory{Classifier: classifier}.Build(node)
	require.NoError(t, err)

	delta, err := runner(context.Background(), state.New("exec-1"))
	require.NoError(t, err)
	assert.Equal(t, "billing", delta["_route"])

	usage := delta["_token_usage"].(map[string]interface{})
	assert.Equal(t, float64(15), usage["total_tokens"])
	require.NotNil(t, classifier.gotInput)
}

func TestCategorizerFactory_PropagatesClassifierError(t *testing.T) {
	classifier := &fakeClassifier{err: assert.AnError}
	node := &domain.Node{ID: "cat2", ComponentConfig: &domain.ComponentConfig{}}
	runner, err := CategorizerFactory{Classifier: classifier}.Build(node)
	require.NoError(t, err)

	_, err = runner(context.Background(), state.New("exec-1"))
	assert.Error(t, err)
}
