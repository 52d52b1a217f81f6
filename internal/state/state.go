// Package state holds the fixed-shape execution state threaded through a
// workflow run, its merge semantics, and its serialise/deserialise
// round-trip. Grounded on the teacher's ExecutionState
// (internal/application/engine/types.go) and ExecutionCheckpoint
// (execution_checkpoint.go), generalized from the teacher's per-node-map
// bookkeeping fields to the reserved-delta-key state shape.
package state

import "encoding/json"

// Message is one LLM-conversation turn, carried in State.Messages.
type Message struct {
	Role          string                 `json:"role"`
	Content       string                 `json:"content"`
	ToolCalls     json.RawMessage        `json:"tool_calls,omitempty"`
	UsageMetadata map[string]interface{} `json:"usage_metadata,omitempty"`
}

// TokenUsage is the running per-execution token/cost counter folded from
// each component's `_token_usage` delta.
type TokenUsage struct {
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	TotalTokens  int64   `json:"total_tokens"`
	CostUSD      float64 `json:"cost_usd"`
	LLMCalls     int64   `json:"llm_calls"`
}

// LoopIterationState tracks a single loop node's source items and cursor.
type LoopIterationState struct {
	Items []interface{} `json:"items"`
	Index int           `json:"index"`
}

// State is the fixed-shape map threaded through one execution. Field names
// mirror spec's reserved keys (messages, node_outputs, trigger, user_context,
// current_node, execution_id, route, branch_results, plan, output,
// loop_state, error, should_retry) plus TokenUsage (summed from `_token_usage`
// deltas and copied onto the execution row's counters by the orchestrator),
// DelaySeconds and ResumeInput (set from `_delay_seconds` / `_resume_input`).
type State struct {
	Messages      []Message                      `json:"messages"`
	NodeOutputs   map[string]interface{}         `json:"node_outputs"`
	Trigger       map[string]interface{}         `json:"trigger"`
	UserContext   map[string]interface{}         `json:"user_context"`
	CurrentNode   string                         `json:"current_node"`
	ExecutionID   string                         `json:"execution_id"`
	Route         string                         `json:"route"`
	BranchResults map[string]interface{}         `json:"branch_results"`
	Plan          interface{}                    `json:"plan,omitempty"`
	Output        interface{}                    `json:"output,omitempty"`
	LoopState     map[string]*LoopIterationState `json:"loop_state"`
	Error         string                         `json:"error,omitempty"`
	ShouldRetry   bool                           `json:"should_retry"`

	TokenUsage    TokenUsage  `json:"token_usage"`
	DelaySeconds  float64     `json:"delay_seconds,omitempty"`
	ResumeInput   interface{} `json:"resume_input,omitempty"`
}

// New returns an empty State for the given execution.
func New(executionID string) *State {
	return &State{
		ExecutionID:   executionID,
		NodeOutputs:   make(map[string]interface{}),
		Trigger:       make(map[string]interface{}),
		UserContext:   make(map[string]interface{}),
		BranchResults: make(map[string]interface{}),
		LoopState:     make(map[string]*LoopIterationState),
	}
}

// Serialise encodes state to its wire form.
func Serialise(s *State) ([]byte, error) {
	return json.Marshal(s)
}

// Deserialise decodes state from its wire form.
func Deserialise(data []byte) (*State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	if s.NodeOutputs == nil {
		s.NodeOutputs = make(map[string]interface{})
	}
	if s.Trigger == nil {
		s.Trigger = make(map[string]interface{})
	}
	if s.UserContext == nil {
		s.UserContext = make(map[string]interface{})
	}
	if s.BranchResults == nil {
		s.BranchResults = make(map[string]interface{})
	}
	if s.LoopState == nil {
		s.LoopState = make(map[string]*LoopIterationState)
	}
	return &s, nil
}
