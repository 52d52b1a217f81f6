package component

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/flowforge/core/internal/domain"
	"github.com/flowforge/core/internal/state"
)

// SubWorkflowFactory builds runners for the "workflow" component type: a
// node that delegates to another workflow entirely and resumes once that
// child execution finishes. It shares the spawn_and_await suspend contract
// with AgentFactory's tool loop so the orchestrator handles both with the
// same wait/resume machinery.
type SubWorkflowFactory struct{}

// Build implements Factory.
func (SubWorkflowFactory) Build(node *domain.Node) (Runner, error) {
	if node.SubworkflowID == "" {
		return nil, fmt.Errorf("workflow %s: requires subworkflow_id", node.ID)
	}
	subID := node.SubworkflowID

	return func(_ context.Context, s *state.State) (Delta, error) {
		input := s.NodeOutputs
		data, err := json.Marshal(input)
		if err != nil {
			return nil, fmt.Errorf("workflow %s: marshal input: %w", node.ID, err)
		}
		return nil, &SpawnInterrupt{
			Tasks: []SpawnTask{{WorkflowID: subID, InputText: string(data)}},
		}
	}, nil
}
