package component

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/core/internal/domain"
	"github.com/flowforge/core/internal/state"
)

func TestRegisterDefaults_BindsEveryExecutableType(t *testing.T) {
	reg := NewRegistry()
	agent := AgentFactory{
		Provider:     &fakeProvider{},
		ToolResolver: func(*domain.Node) ([]Tool, error) { return nil, nil },
	}
	categorizer := CategorizerFactory{Classifier: &fakeClassifier{}}

	require.NoError(t, RegisterDefaults(reg, agent, categorizer))

	for _, ct := range []domain.ComponentType{
		domain.ComponentAgent,
		domain.ComponentCategorizer,
		domain.ComponentRouter,
		domain.ComponentSwitch,
		domain.ComponentLoop,
		domain.ComponentMerge,
		domain.ComponentFilter,
		domain.ComponentHumanConfirmation,
		domain.ComponentCode,
		domain.ComponentCodeExecute,
		domain.ComponentWorkflow,
	} {
		assert.True(t, reg.Has(ct), "expected %s to be registered", ct)
	}
}

func TestRegisterDefaults_RouterAndSwitchShareTheSameFactoryBehaviour(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, RegisterDefaults(reg, AgentFactory{
		Provider:     &fakeProvider{},
		ToolResolver: func(*domain.Node) ([]Tool, error) { return nil, nil },
	}, CategorizerFactory{Classifier: &fakeClassifier{}}))

	routerFactory, err := reg.Get(domain.ComponentRouter)
	require.NoError(t, err)
	switchFactory, err := reg.Get(domain.ComponentSwitch)
	require.NoError(t, err)

	node := nodeWithExtraConfig("switch1", `{"rules":[{"id":"a","field":"trigger.x","operator":"equals","value":1}]}`)
	routerRunner, err := routerFactory.Build(node)
	require.NoError(t, err)
	switchRunner, err := switchFactory.Build(node)
	require.NoError(t, err)

	s := state.New("exec-1")
	s.Trigger["x"] = 1

	rd, err := routerRunner(context.Background(), s)
	require.NoError(t, err)
	sd, err := switchRunner(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, rd["_route"], sd["_route"])
}
