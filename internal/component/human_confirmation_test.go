package component

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/core/internal/domain"
	"github.com/flowforge/core/internal/state"
)

func TestHumanConfirmationFactory_FirstCallInterrupts(t *testing.T) {
	node := &domain.Node{ID: "hc1", ComponentConfig: &domain.ComponentConfig{SystemPrompt: "approve?"}}
	runner, err := HumanConfirmationFactory{}.Build(node)
	require.NoError(t, err)

	_, err = runner(context.Background(), state.New("exec-1"))
	require.Error(t, err)

	var interrupt *InterruptError
	require.ErrorAs(t, err, &interrupt)
	assert.Equal(t, "approve?", interrupt.Prompt)
}

func TestHumanConfirmationFactory_ResumeWithConfirmedSynonym(t *testing.T) {
	node := &domain.Node{ID: "hc2", ComponentConfig: &domain.ComponentConfig{}}
	runner, err := HumanConfirmationFactory{}.Build(node)
	require.NoError(t, err)

	s := state.New("exec-1")
	s.ResumeInput = "yes"

	delta, err := runner(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, RouteConfirmed, delta["_route"])
	assert.Nil(t, s.ResumeInput, "resume input must be consumed")
}

func TestHumanConfirmationFactory_ResumeWithAnythingElseCancels(t *testing.T) {
	node := &domain.Node{ID: "hc3", ComponentConfig: &domain.ComponentConfig{}}
	runner, err := HumanConfirmationFactory{}.Build(node)
	require.NoError(t, err)

	s := state.New("exec-1")
	s.ResumeInput = "nope"

	delta, err := runner(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, RouteCancelled, delta["_route"])
}
