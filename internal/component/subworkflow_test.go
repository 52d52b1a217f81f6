package component

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/core/internal/domain"
	"github.com/flowforge/core/internal/state"
)

func TestSubWorkflowFactory_RequiresSubworkflowID(t *testing.T) {
	_, err := SubWorkflowFactory{}.Build(&domain.Node{ID: "sw1"})
	assert.Error(t, err)
}

func TestSubWorkflowFactory_ReturnsSpawnInterruptForChildWorkflow(t *testing.T) {
	node := &domain.Node{ID: "sw2", SubworkflowID: "child-wf"}
	runner, err := SubWorkflowFactory{}.Build(node)
	require.NoError(t, err)

	s := state.New("exec-1")
	s.NodeOutputs["prev"] = map[string]interface{}{"value": 42.0}

	_, err = runner(context.Background(), s)
	require.Error(t, err)

	var interrupt *SpawnInterrupt
	require.ErrorAs(t, err, &interrupt)
	require.Len(t, interrupt.Tasks, 1)
	assert.Equal(t, "child-wf", interrupt.Tasks[0].WorkflowID)
	assert.Contains(t, interrupt.Tasks[0].InputText, "42")
}
