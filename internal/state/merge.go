package state

// Merge applies delta to existing per the reserved-key rules of spec's state
// merging: `messages` appends, `node_outputs` shallow-merges (later entries
// win per node_id), `_token_usage` sums numeric fields into the running
// counter, and every other recognised key overwrites. Returns a new State;
// existing is left untouched.
func Merge(existing *State, delta map[string]interface{}) *State {
	next := clone(existing)

	for k, v := range delta {
		switch k {
		case "messages":
			next.Messages = append(next.Messages, toMessages(v)...)
		case "node_outputs":
			for nodeID, out := range toMap(v) {
				next.NodeOutputs[nodeID] = out
			}
		case "_route", "route":
			if s, ok := v.(string); ok {
				next.Route = s
			}
		case "_token_usage":
			next.TokenUsage = sumTokenUsage(next.TokenUsage, v)
		case "_delay_seconds":
			next.DelaySeconds = toFloat(v)
		case "_resume_input":
			next.ResumeInput = v
		case "_loop":
			applyLoopDelta(next, v)
		case "output":
			next.Output = v
		case "error":
			if s, ok := v.(string); ok {
				next.Error = s
			}
		case "should_retry":
			if b, ok := v.(bool); ok {
				next.ShouldRetry = b
			}
		case "trigger":
			if m, ok := v.(map[string]interface{}); ok {
				next.Trigger = m
			}
		case "user_context":
			if m, ok := v.(map[string]interface{}); ok {
				next.UserContext = m
			}
		case "current_node":
			if s, ok := v.(string); ok {
				next.CurrentNode = s
			}
		case "execution_id":
			if s, ok := v.(string); ok {
				next.ExecutionID = s
			}
		case "branch_results":
			if m, ok := v.(map[string]interface{}); ok {
				next.BranchResults = m
			}
		case "plan":
			next.Plan = v
		case "loop_state":
			if m, ok := v.(map[string]*LoopIterationState); ok {
				next.LoopState = m
			}
		}
	}

	return next
}

// ConsumeResumeInput reads and clears the one-shot resume payload, matching
// the "_resume_input: consumed" rule — it is present on the first invocation
// after a resume only.
func ConsumeResumeInput(s *State) interface{} {
	v := s.ResumeInput
	s.ResumeInput = nil
	return v
}

func clone(s *State) *State {
	if s == nil {
		s = New("")
	}
	next := &State{
		ExecutionID:  s.ExecutionID,
		CurrentNode:  s.CurrentNode,
		Route:        s.Route,
		Plan:         s.Plan,
		Output:       s.Output,
		Error:        s.Error,
		ShouldRetry:  s.ShouldRetry,
		TokenUsage:   s.TokenUsage,
		DelaySeconds: s.DelaySeconds,
		ResumeInput:  s.ResumeInput,
	}

	next.Messages = append([]Message{}, s.Messages...)

	next.NodeOutputs = make(map[string]interface{}, len(s.NodeOutputs))
	for k, v := range s.NodeOutputs {
		next.NodeOutputs[k] = v
	}

	next.Trigger = make(map[string]interface{}, len(s.Trigger))
	for k, v := range s.Trigger {
		next.Trigger[k] = v
	}

	next.UserContext = make(map[string]interface{}, len(s.UserContext))
	for k, v := range s.UserContext {
		next.UserContext[k] = v
	}

	next.BranchResults = make(map[string]interface{}, len(s.BranchResults))
	for k, v := range s.BranchResults {
		next.BranchResults[k] = v
	}

	next.LoopState = make(map[string]*LoopIterationState, len(s.LoopState))
	for k, v := range s.LoopState {
		next.LoopState[k] = v
	}

	return next
}

func toMessages(v interface{}) []Message {
	switch t := v.(type) {
	case []Message:
		return t
	case []interface{}:
		out := make([]Message, 0, len(t))
		for _, item := range t {
			if m, ok := item.(Message); ok {
				out = append(out, m)
				continue
			}
			if m, ok := item.(map[string]interface{}); ok {
				out = append(out, Message{
					Role:    toStr(m["role"]),
					Content: toStr(m["content"]),
				})
			}
		}
		return out
	default:
		return nil
	}
}

func toMap(v interface{}) map[string]interface{} {
	if m, ok := v.(map[string]interface{}); ok {
		return m
	}
	return nil
}

func toStr(v interface{}) string {
	s, _ := v.(string)
	return s
}

func toFloat(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	default:
		return 0
	}
}

func sumTokenUsage(existing TokenUsage, v interface{}) TokenUsage {
	m, ok := v.(map[string]interface{})
	if !ok {
		return existing
	}
	existing.InputTokens += int64(toFloat(m["input_tokens"]))
	existing.OutputTokens += int64(toFloat(m["output_tokens"]))
	existing.TotalTokens += int64(toFloat(m["total_tokens"]))
	existing.CostUSD += toFloat(m["cost_usd"])
	existing.LLMCalls++
	return existing
}

func applyLoopDelta(s *State, v interface{}) {
	m, ok := v.(map[string]interface{})
	if !ok {
		return
	}
	nodeID := s.CurrentNode
	items, _ := m["items"].([]interface{})
	s.LoopState[nodeID] = &LoopIterationState{Items: items, Index: 0}
}
