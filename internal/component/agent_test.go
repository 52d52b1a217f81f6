package component

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/core/internal/checkpoint"
	"github.com/flowforge/core/internal/domain"
	"github.com/flowforge/core/internal/state"
)

// fakeProvider replays a scripted sequence of CompletionResponses, one per
// Complete call, so agent tests can drive a multi-turn tool loop
// deterministically instead of depending on a real vendor client.
type fakeProvider struct {
	responses []CompletionResponse
	errs      []error
	calls     int
	gotReqs   []CompletionRequest
}

func (f *fakeProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	f.gotReqs = append(f.gotReqs, req)
	idx := f.calls
	f.calls++
	var err error
	if idx < len(f.errs) {
		err = f.errs[idx]
	}
	if idx >= len(f.responses) {
		return CompletionResponse{}, err
	}
	return f.responses[idx], err
}

type fakeTool struct {
	name   string
	result interface{}
	err    error
	calls  int
}

func (t *fakeTool) Spec() ToolSpec { return ToolSpec{Name: t.name, Description: "fake tool"} }
func (t *fakeTool) Invoke(ctx context.Context, s *state.State, args json.RawMessage) (interface{}, error) {
	t.calls++
	return t.result, t.err
}

func agentNode(systemPrompt string) *domain.Node {
	return &domain.Node{ID: "agent1", ComponentConfig: &domain.ComponentConfig{SystemPrompt: systemPrompt}}
}

func TestAgentFactory_RequiresSystemPrompt(t *testing.T) {
	node := &domain.Node{ID: "agent0", ComponentConfig: &domain.ComponentConfig{}}
	_, err := AgentFactory{Provider: &fakeProvider{}, ToolResolver: func(*domain.Node) ([]Tool, error) { return nil, nil }}.Build(node)
	assert.Error(t, err)
}

func TestAgentFactory_FinalAnswerWithoutToolCalls(t *testing.T) {
	provider := &fakeProvider{responses: []CompletionResponse{
		{Message: state.Message{Role: "assistant", Content: "done"}, Usage: state.TokenUsage{TotalTokens: 12}},
	}}
	factory := AgentFactory{Provider: provider, ToolResolver: func(*domain.Node) ([]Tool, error) { return nil, nil }}
	runner, err := factory.Build(agentNode("be helpful"))
	require.NoError(t, err)

	delta, err := runner(context.Background(), state.New("exec-1"))
	require.NoError(t, err)
	assert.Equal(t, "done", delta["output"])
	usage := delta["_token_usage"].(map[string]interface{})
	assert.Equal(t, float64(12), usage["total_tokens"])
	assert.Equal(t, 1, provider.calls)
}

func TestAgentFactory_InvokesBoundToolThenReturnsFinalAnswer(t *testing.T) {
	tool := &fakeTool{name: "lookup", result: map[string]interface{}{"found": true}}
	provider := &fakeProvider{responses: []CompletionResponse{
		{
			Message:   state.Message{Role: "assistant", Content: ""},
			ToolCalls: []ToolCall{{ID: "tc1", Name: "lookup", Arguments: json.RawMessage(`{}`)}},
		},
		{Message: state.Message{Role: "assistant", Content: "final"}},
	}}
	factory := AgentFactory{
		Provider:     provider,
		ToolResolver: func(*domain.Node) ([]Tool, error) { return []Tool{tool}, nil },
	}
	runner, err := factory.Build(agentNode("use tools"))
	require.NoError(t, err)

	delta, err := runner(context.Background(), state.New("exec-1"))
	require.NoError(t, err)
	assert.Equal(t, "final", delta["output"])
	assert.Equal(t, 1, tool.calls)
	assert.Equal(t, 2, provider.calls)
}

func TestAgentFactory_UnboundToolCallProducesErrorMessageNotFailure(t *testing.T) {
	provider := &fakeProvider{responses: []CompletionResponse{
		{
			Message:   state.Message{Role: "assistant"},
			ToolCalls: []ToolCall{{ID: "tc1", Name: "unknown_tool", Arguments: json.RawMessage(`{}`)}},
		},
		{Message: state.Message{Role: "assistant", Content: "recovered"}},
	}}
	factory := AgentFactory{Provider: provider, ToolResolver: func(*domain.Node) ([]Tool, error) { return nil, nil }}
	runner, err := factory.Build(agentNode("use tools"))
	require.NoError(t, err)

	delta, err := runner(context.Background(), state.New("exec-1"))
	require.NoError(t, err)
	assert.Equal(t, "recovered", delta["output"])
}

func TestAgentFactory_SpawnAndAwaitToolCallReturnsSpawnInterrupt(t *testing.T) {
	provider := &fakeProvider{responses: []CompletionResponse{
		{
			Message: state.Message{Role: "assistant"},
			ToolCalls: []ToolCall{{
				ID:   "tc1",
				Name: SpawnAndAwaitToolName,
				Arguments: json.RawMessage(`{"tasks":[{"workflow_slug":"child","input_text":"go"}]}`),
			}},
		},
	}}
	factory := AgentFactory{Provider: provider, ToolResolver: func(*domain.Node) ([]Tool, error) { return nil, nil }}
	runner, err := factory.Build(agentNode("delegate"))
	require.NoError(t, err)

	_, err = runner(context.Background(), state.New("exec-1"))
	require.Error(t, err)

	var interrupt *SpawnInterrupt
	require.ErrorAs(t, err, &interrupt)
	assert.Equal(t, "tc1", interrupt.ToolCallID)
	require.Len(t, interrupt.Tasks, 1)
	assert.Equal(t, "child", interrupt.Tasks[0].WorkflowSlug)
}

func TestAgentFactory_SpawnAndAwaitPersistsCheckpointThenResumesToolLoop(t *testing.T) {
	provider := &fakeProvider{responses: []CompletionResponse{
		{
			Message: state.Message{Role: "assistant"},
			ToolCalls: []ToolCall{{
				ID:        "tc1",
				Name:      SpawnAndAwaitToolName,
				Arguments: json.RawMessage(`{"tasks":[{"workflow_slug":"child","input_text":"go"}]}`),
			}},
		},
		{Message: state.Message{Role: "assistant", Content: "final"}},
	}}
	store := checkpoint.NewMemoryStore()
	node := agentNode("delegate")
	factory := AgentFactory{
		Provider:     provider,
		ToolResolver: func(*domain.Node) ([]Tool, error) { return nil, nil },
		Checkpoints:  store,
	}
	runner, err := factory.Build(node)
	require.NoError(t, err)

	s := state.New("exec-1")
	s.UserContext["thread_id"] = "thread-1"

	delta, err := runner(context.Background(), s)
	var interrupt *SpawnInterrupt
	require.ErrorAs(t, err, &interrupt)
	assert.Equal(t, "tc1", interrupt.ToolCallID)
	require.NotNil(t, delta)
	msgs, ok := delta["messages"].([]interface{})
	require.True(t, ok)
	assert.NotEmpty(t, msgs)

	raw, found, loadErr := store.Load(context.Background(), "thread-1")
	require.NoError(t, loadErr)
	require.True(t, found)
	var saved AgentCheckpoint
	require.NoError(t, json.Unmarshal(raw, &saved))
	assert.Equal(t, "tc1", saved.PendingToolCallID)
	assert.Equal(t, node.ID, saved.NodeID)

	resumeState := state.New("exec-1")
	resumeState.UserContext["thread_id"] = "thread-1"
	resumeState.NodeOutputs[node.ID] = map[string]interface{}{
		SpawnResultsKey: []map[string]interface{}{{"status": "completed", "output": 42}},
	}

	resumeDelta, err := runner(context.Background(), resumeState)
	require.NoError(t, err)
	assert.Equal(t, "final", resumeDelta["output"])
	assert.Equal(t, 2, provider.calls)

	_, found, loadErr = store.Load(context.Background(), "thread-1")
	require.NoError(t, loadErr)
	assert.False(t, found)
}

func TestAgentFactory_ExceedingMaxTurnsIsAnError(t *testing.T) {
	loopResponse := CompletionResponse{
		Message:   state.Message{Role: "assistant"},
		ToolCalls: []ToolCall{{ID: "tc", Name: "lookup", Arguments: json.RawMessage(`{}`)}},
	}
	provider := &fakeProvider{responses: []CompletionResponse{loopResponse, loopResponse, loopResponse}}
	tool := &fakeTool{name: "lookup", result: "x"}
	factory := AgentFactory{
		Provider:     provider,
		ToolResolver: func(*domain.Node) ([]Tool, error) { return []Tool{tool}, nil },
		MaxTurns:     2,
	}
	runner, err := factory.Build(agentNode("loops forever"))
	require.NoError(t, err)

	_, err = runner(context.Background(), state.New("exec-1"))
	assert.Error(t, err)
}

func TestAgentFactory_ProviderErrorIsWrapped(t *testing.T) {
	provider := &fakeProvider{errs: []error{assert.AnError}}
	factory := AgentFactory{Provider: provider, ToolResolver: func(*domain.Node) ([]Tool, error) { return nil, nil }}
	runner, err := factory.Build(agentNode("x"))
	require.NoError(t, err)

	_, err = runner(context.Background(), state.New("exec-1"))
	assert.Error(t, err)
}
