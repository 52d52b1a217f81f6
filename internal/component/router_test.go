package component

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/core/internal/condition"
	"github.com/flowforge/core/internal/domain"
	"github.com/flowforge/core/internal/state"
)

func TestRouterFactory_FirstMatchingRuleWins(t *testing.T) {
	node := nodeWithExtraConfig("router1", `{
		"rules": [
			{"id": "small", "field": "trigger.amount", "operator": "lt", "value": 100},
			{"id": "large", "field": "trigger.amount", "operator": "gte", "value": 100}
		]
	}`)
	runner, err := RouterFactory{}.Build(node)
	require.NoError(t, err)

	s := state.New("exec-1")
	s.Trigger["amount"] = 250

	delta, err := runner(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "large", delta["_route"])
}

func TestRouterFactory_NoMatchWithoutFallbackIsEmpty(t *testing.T) {
	node := nodeWithExtraConfig("router2", `{
		"rules": [{"id": "only", "field": "trigger.amount", "operator": "equals", "value": 1}]
	}`)
	runner, err := RouterFactory{}.Build(node)
	require.NoError(t, err)

	s := state.New("exec-1")
	s.Trigger["amount"] = 2

	delta, err := runner(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "", delta["_route"])
}

func TestRouterFactory_FallbackToOther(t *testing.T) {
	node := nodeWithExtraConfig("router3", `{
		"rules": [{"id": "only", "field": "trigger.amount", "operator": "equals", "value": 1}],
		"fallback": true
	}`)
	runner, err := RouterFactory{}.Build(node)
	require.NoError(t, err)

	delta, err := runner(context.Background(), state.New("exec-1"))
	require.NoError(t, err)
	assert.Equal(t, "__other__", delta["_route"])
}

func TestToConditionRules(t *testing.T) {
	rules := toConditionRules([]domain.RouteRule{{ID: "r1", Field: "x", Operator: condition.OpEquals, Value: 1}})
	require.Len(t, rules, 1)
	assert.Equal(t, "r1", rules[0].ID)
}
