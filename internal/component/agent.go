package component

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/flowforge/core/internal/checkpoint"
	"github.com/flowforge/core/internal/domain"
	"github.com/flowforge/core/internal/logger"
	"github.com/flowforge/core/internal/state"
)

// DefaultMaxAgentTurns bounds the tool-calling loop before an agent gives up
// without a final answer.
const DefaultMaxAgentTurns = 8

// SpawnAndAwaitToolName is the one reserved tool name that introduces true
// cross-node parallelism from inside an agent's tool loop.
const SpawnAndAwaitToolName = "spawn_and_await"

// ToolSpec is the provider-facing description of one callable tool.
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ToolCall is one invocation the model asked for in a turn.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// CompletionRequest is what an agent sends a Provider for one turn.
type CompletionRequest struct {
	SystemPrompt string
	Messages     []state.Message
	Tools        []ToolSpec
	ModelName    string
	Temperature  float64
	MaxTokens    int
}

// CompletionResponse is a Provider's answer for one turn: either a final
// message or a set of tool calls to satisfy before the next turn.
type CompletionResponse struct {
	Message   state.Message
	ToolCalls []ToolCall
	Usage     state.TokenUsage
}

// Provider is the LLM dependency an agent runner calls each turn. Kept
// narrow so tests substitute a deterministic fake instead of a real vendor
// client — vendor request shapes are explicitly out of scope.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}

// Tool is a callable an agent can bind via an outgoing `tool` edge.
type Tool interface {
	Spec() ToolSpec
	Invoke(ctx context.Context, s *state.State, args json.RawMessage) (interface{}, error)
}

// ToolResolver returns the tools bound to a node via its outgoing `tool`
// edges. Takes the full Node, not just its ID, because node IDs are only
// unique within a workflow (spec.md §3): the resolver needs node.WorkflowID
// to know which workflow's edges to search.
type ToolResolver func(node *domain.Node) ([]Tool, error)

// SpawnTask is one child-execution request inside a spawn_and_await call.
// WorkflowID, when set, names a workflow directly (the sub-workflow
// component type's contract); WorkflowSlug, used by the agent tool-calling
// path, is resolved against the workflow repository at spawn time instead.
type SpawnTask struct {
	WorkflowID   string                 `json:"workflow_id,omitempty"`
	WorkflowSlug string                 `json:"workflow_slug,omitempty"`
	InputText    string                 `json:"input_text,omitempty"`
	Input        map[string]interface{} `json:"input,omitempty"`
}

// SpawnInterrupt is returned by an agent runner, alongside the turn's Delta
// (its messages and _token_usage), when the
// model invokes spawn_and_await: the orchestrator's internal/spawn package
// creates the child executions and arranges the eventual resume.
type SpawnInterrupt struct {
	ToolCallID string
	Tasks      []SpawnTask
}

func (e *SpawnInterrupt) Error() string {
	return fmt.Sprintf("component: agent requested spawn_and_await with %d task(s)", len(e.Tasks))
}

// AgentCheckpoint is the opaque payload an agent writes to the checkpoint
// store (spec.md §3/§9) the instant it suspends on spawn_and_await: the
// conversation up to and including the tool-call turn, so resume can feed
// the children's results back as that call's return value instead of
// starting the reasoning loop over.
type AgentCheckpoint struct {
	NodeID            string          `json:"node_id"`
	PendingToolCallID string          `json:"pending_tool_call_id"`
	Turn              int             `json:"turn"`
	Messages          []state.Message `json:"messages"`
}

// SpawnResultsKey is the node_outputs scratch key the orchestrator's
// pollChildWait writes the ordered spawn_and_await results into before
// re-entering the agent's Runner for another turn.
const SpawnResultsKey = "_spawn_results"

// AgentFactory builds agent runners bound to a Provider and a ToolResolver.
type AgentFactory struct {
	Provider     Provider
	ToolResolver ToolResolver
	MaxTurns     int

	// Checkpoints persists in-flight tool-loop state across a
	// spawn_and_await suspension, keyed by state.UserContext["thread_id"].
	// Nil disables cross-turn persistence (spawn_and_await still
	// interrupts; resume starts a fresh reasoning turn instead of
	// rehydrating the pending tool call).
	Checkpoints checkpoint.Store
}

// Build implements Factory.
func (f AgentFactory) Build(node *domain.Node) (Runner, error) {
	if node.ComponentConfig == nil || node.ComponentConfig.SystemPrompt == "" {
		return nil, fmt.Errorf("agent %s: requires a system prompt", node.ID)
	}

	tools, err := f.ToolResolver(node)
	if err != nil {
		return nil, fmt.Errorf("agent %s: resolving tools: %w", node.ID, err)
	}
	toolsByName := make(map[string]Tool, len(tools))
	specs := make([]ToolSpec, 0, len(tools))
	for _, t := range tools {
		spec := t.Spec()
		toolsByName[spec.Name] = t
		specs = append(specs, spec)
	}

	maxTurns := f.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxAgentTurns
	}

	cfg := node.ComponentConfig

	return func(ctx context.Context, s *state.State) (Delta, error) {
		threadID, _ := s.UserContext["thread_id"].(string)

		messages := append([]state.Message{}, s.Messages...)
		var usage state.TokenUsage
		var newMessages []state.Message
		startTurn := 0

		if threadID != "" && f.Checkpoints != nil {
			if resumeMsgs, resultMsg, turn, ok := resumePendingSpawn(ctx, f.Checkpoints, threadID, node.ID, s); ok {
				messages = resumeMsgs
				messages = append(messages, resultMsg)
				newMessages = append(newMessages, resultMsg)
				startTurn = turn + 1
				if err := f.Checkpoints.Delete(ctx, threadID); err != nil {
					logger.Default().Warn("component: delete agent checkpoint failed", "thread_id", threadID, "error", err)
				}
			}
		}

		for turn := startTurn; turn < maxTurns; turn++ {
			resp, err := f.Provider.Complete(ctx, CompletionRequest{
				SystemPrompt: cfg.SystemPrompt,
				Messages:     messages,
				Tools:        specs,
				ModelName:    cfg.ModelName,
				Temperature:  cfg.Temperature,
				MaxTokens:    cfg.MaxTokens,
			})
			if err != nil {
				return nil, fmt.Errorf("agent %s: provider call failed: %w", node.ID, err)
			}
			usage = sumUsage(usage, resp.Usage)
			messages = append(messages, resp.Message)
			newMessages = append(newMessages, resp.Message)

			if len(resp.ToolCalls) == 0 {
				return Delta{
					"output":       resp.Message.Content,
					"messages":     toInterfaceSlice(newMessages),
					"node_outputs": map[string]interface{}{node.ID: resp.Message.Content},
					"_token_usage": usageDelta(usage),
				}, nil
			}

			for _, tc := range resp.ToolCalls {
				if tc.Name == SpawnAndAwaitToolName {
					var payload struct {
						Tasks []SpawnTask `json:"tasks"`
					}
					if err := json.Unmarshal(tc.Arguments, &payload); err != nil {
						return nil, fmt.Errorf("agent %s: invalid spawn_and_await arguments: %w", node.ID, err)
					}
					if threadID != "" && f.Checkpoints != nil {
						cp := AgentCheckpoint{NodeID: node.ID, PendingToolCallID: tc.ID, Turn: turn, Messages: messages}
						if data, err := json.Marshal(cp); err != nil {
							logger.Default().Warn("component: marshal agent checkpoint failed", "node_id", node.ID, "error", err)
						} else if err := f.Checkpoints.Save(ctx, threadID, data); err != nil {
							logger.Default().Warn("component: save agent checkpoint failed", "thread_id", threadID, "error", err)
						}
					}
					return Delta{
						"messages":     toInterfaceSlice(newMessages),
						"_token_usage": usageDelta(usage),
					}, &SpawnInterrupt{ToolCallID: tc.ID, Tasks: payload.Tasks}
				}

				tool, ok := toolsByName[tc.Name]
				result, toolErr := invokeTool(ctx, tool, ok, s, tc)
				resultMsg := toolResultMessage(tc, result, toolErr)
				messages = append(messages, resultMsg)
				newMessages = append(newMessages, resultMsg)
			}
		}

		return nil, fmt.Errorf("agent %s: exceeded %d tool-calling turns without a final answer", node.ID, maxTurns)
	}, nil
}

// resumePendingSpawn loads nodeID's checkpoint for threadID, if any, and
// folds in the spawn_and_await results the orchestrator staged at
// s.NodeOutputs[nodeID][SpawnResultsKey], returning the conversation to
// replay from plus the synthesized tool-result message standing in for the
// pending call's return value. ok is false when there is nothing to resume
// (fresh node invocation, or a stale/foreign checkpoint).
func resumePendingSpawn(ctx context.Context, store checkpoint.Store, threadID, nodeID string, s *state.State) (messages []state.Message, resultMsg state.Message, turn int, ok bool) {
	raw, found, err := store.Load(ctx, threadID)
	if err != nil || !found {
		return nil, state.Message{}, 0, false
	}
	var saved AgentCheckpoint
	if err := json.Unmarshal(raw, &saved); err != nil || saved.NodeID != nodeID || saved.PendingToolCallID == "" {
		return nil, state.Message{}, 0, false
	}
	out, ok := s.NodeOutputs[nodeID].(map[string]interface{})
	if !ok {
		return nil, state.Message{}, 0, false
	}
	results, ok := out[SpawnResultsKey]
	if !ok {
		return nil, state.Message{}, 0, false
	}
	resultsJSON, _ := json.Marshal(results)
	return saved.Messages, state.Message{Role: "tool", Content: string(resultsJSON)}, saved.Turn, true
}

func invokeTool(ctx context.Context, tool Tool, found bool, s *state.State, tc ToolCall) (interface{}, error) {
	if !found {
		return nil, fmt.Errorf("tool %q is not bound to this agent", tc.Name)
	}
	return tool.Invoke(ctx, s, tc.Arguments)
}

func toolResultMessage(tc ToolCall, result interface{}, err error) state.Message {
	if err != nil {
		return state.Message{Role: "tool", Content: fmt.Sprintf("error: %v", err)}
	}
	data, marshalErr := json.Marshal(result)
	if marshalErr != nil {
		return state.Message{Role: "tool", Content: fmt.Sprintf("error: %v", marshalErr)}
	}
	return state.Message{Role: "tool", Content: string(data)}
}

func sumUsage(a, b state.TokenUsage) state.TokenUsage {
	return state.TokenUsage{
		InputTokens:  a.InputTokens + b.InputTokens,
		OutputTokens: a.OutputTokens + b.OutputTokens,
		TotalTokens:  a.TotalTokens + b.TotalTokens,
		CostUSD:      a.CostUSD + b.CostUSD,
		LLMCalls:     a.LLMCalls + b.LLMCalls,
	}
}

func usageDelta(u state.TokenUsage) map[string]interface{} {
	return map[string]interface{}{
		"input_tokens":  float64(u.InputTokens),
		"output_tokens": float64(u.OutputTokens),
		"total_tokens":  float64(u.TotalTokens),
		"cost_usd":      u.CostUSD,
	}
}

func toInterfaceSlice(messages []state.Message) []interface{} {
	out := make([]interface{}, len(messages))
	for i, m := range messages {
		out[i] = m
	}
	return out
}
