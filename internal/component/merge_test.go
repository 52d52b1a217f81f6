package component

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/core/internal/domain"
	"github.com/flowforge/core/internal/state"
)

func nodeWithExtraConfig(id string, extra string) *domain.Node {
	return &domain.Node{
		ID:              id,
		ComponentConfig: &domain.ComponentConfig{ExtraConfig: []byte(extra)},
	}
}

func TestMergeFactory_AppendMode(t *testing.T) {
	node := nodeWithExtraConfig("merge1", `{"source_nodes":["a","b"]}`)
	runner, err := MergeFactory{}.Build(node)
	require.NoError(t, err)

	s := state.New("exec-1")
	s.NodeOutputs["a"] = "first"
	s.NodeOutputs["b"] = "second"

	delta, err := runner(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"first", "second"}, delta["output"])
}

func TestMergeFactory_CombineMode_LaterSourceWins(t *testing.T) {
	node := nodeWithExtraConfig("merge2", `{"source_nodes":["a","b"],"mode":"combine"}`)
	runner, err := MergeFactory{}.Build(node)
	require.NoError(t, err)

	s := state.New("exec-1")
	s.NodeOutputs["a"] = map[string]interface{}{"x": 1, "y": 2}
	s.NodeOutputs["b"] = map[string]interface{}{"y": 3}

	delta, err := runner(context.Background(), s)
	require.NoError(t, err)
	combined := delta["output"].(map[string]interface{})
	assert.Equal(t, 1, combined["x"])
	assert.Equal(t, 3, combined["y"])
}

func TestMergeFactory_RequiresSourceNodes(t *testing.T) {
	node := nodeWithExtraConfig("merge3", `{"source_nodes":[]}`)
	_, err := MergeFactory{}.Build(node)
	assert.Error(t, err)
}

func TestMergeFactory_UnknownMode(t *testing.T) {
	node := nodeWithExtraConfig("merge4", `{"source_nodes":["a"],"mode":"average"}`)
	runner, err := MergeFactory{}.Build(node)
	require.NoError(t, err)

	_, err = runner(context.Background(), state.New("exec-1"))
	assert.Error(t, err)
}
