package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeMessagesAppends(t *testing.T) {
	s := New("exec1")
	s = Merge(s, map[string]interface{}{
		"messages": []interface{}{map[string]interface{}{"role": "user", "content": "hi"}},
	})
	s = Merge(s, map[string]interface{}{
		"messages": []interface{}{map[string]interface{}{"role": "assistant", "content": "hello"}},
	})
	require.Len(t, s.Messages, 2)
	assert.Equal(t, "user", s.Messages[0].Role)
	assert.Equal(t, "assistant", s.Messages[1].Role)
}

func TestMergeNodeOutputsShallowMergeLaterWins(t *testing.T) {
	s := New("exec1")
	s = Merge(s, map[string]interface{}{
		"node_outputs": map[string]interface{}{"A": "first"},
	})
	s = Merge(s, map[string]interface{}{
		"node_outputs": map[string]interface{}{"A": "second", "B": "b-output"},
	})
	assert.Equal(t, "second", s.NodeOutputs["A"])
	assert.Equal(t, "b-output", s.NodeOutputs["B"])
}

func TestMergeRouteOverwrite(t *testing.T) {
	s := New("exec1")
	s = Merge(s, map[string]interface{}{"_route": "chat"})
	assert.Equal(t, "chat", s.Route)
	s = Merge(s, map[string]interface{}{"_route": "search"})
	assert.Equal(t, "search", s.Route)
}

func TestMergeTokenUsageSums(t *testing.T) {
	s := New("exec1")
	s = Merge(s, map[string]interface{}{
		"_token_usage": map[string]interface{}{"input_tokens": float64(10), "output_tokens": float64(5), "total_tokens": float64(15), "cost_usd": 0.01},
	})
	s = Merge(s, map[string]interface{}{
		"_token_usage": map[string]interface{}{"input_tokens": float64(20), "output_tokens": float64(8), "total_tokens": float64(28), "cost_usd": 0.02},
	})
	assert.Equal(t, int64(30), s.TokenUsage.InputTokens)
	assert.Equal(t, int64(13), s.TokenUsage.OutputTokens)
	assert.Equal(t, int64(43), s.TokenUsage.TotalTokens)
	assert.InDelta(t, 0.03, s.TokenUsage.CostUSD, 0.0001)
	assert.Equal(t, int64(2), s.TokenUsage.LLMCalls)
}

func TestMergeOutputOverwrite(t *testing.T) {
	s := New("exec1")
	s = Merge(s, map[string]interface{}{"output": "first"})
	s = Merge(s, map[string]interface{}{"output": "second"})
	assert.Equal(t, "second", s.Output)
}

func TestMergeDoesNotMutateExisting(t *testing.T) {
	s := New("exec1")
	s.NodeOutputs["A"] = "orig"
	next := Merge(s, map[string]interface{}{"node_outputs": map[string]interface{}{"A": "changed"}})
	assert.Equal(t, "orig", s.NodeOutputs["A"])
	assert.Equal(t, "changed", next.NodeOutputs["A"])
}

func TestResumeInputConsumedOnce(t *testing.T) {
	s := New("exec1")
	s = Merge(s, map[string]interface{}{"_resume_input": "yes"})
	assert.Equal(t, "yes", s.ResumeInput)
	v := ConsumeResumeInput(s)
	assert.Equal(t, "yes", v)
	assert.Nil(t, s.ResumeInput)
}

func TestLoopDeltaCarriesItems(t *testing.T) {
	s := New("exec1")
	s.CurrentNode = "loop1"
	s = Merge(s, map[string]interface{}{"_loop": map[string]interface{}{"items": []interface{}{"a", "b", "c"}}})
	require.Contains(t, s.LoopState, "loop1")
	assert.Len(t, s.LoopState["loop1"].Items, 3)
	assert.Equal(t, 0, s.LoopState["loop1"].Index)
}

func TestSerialiseDeserialiseRoundTrip(t *testing.T) {
	s := New("exec1")
	s = Merge(s, map[string]interface{}{
		"messages":     []interface{}{map[string]interface{}{"role": "user", "content": "hi"}},
		"node_outputs": map[string]interface{}{"A": map[string]interface{}{"output": float64(10)}},
		"_route":       "chat",
		"output":       "final",
		"should_retry": true,
		"error":        "boom",
	})

	data, err := Serialise(s)
	require.NoError(t, err)

	back, err := Deserialise(data)
	require.NoError(t, err)

	assert.Equal(t, s.ExecutionID, back.ExecutionID)
	assert.Equal(t, s.Messages, back.Messages)
	assert.Equal(t, s.NodeOutputs, back.NodeOutputs)
	assert.Equal(t, s.Route, back.Route)
	assert.Equal(t, s.Output, back.Output)
	assert.Equal(t, s.ShouldRetry, back.ShouldRetry)
	assert.Equal(t, s.Error, back.Error)

	data2, err := Serialise(back)
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(data2))
}

func TestErrorAndShouldRetryOverwrite(t *testing.T) {
	s := New("exec1")
	s = Merge(s, map[string]interface{}{"error": "transient", "should_retry": true})
	assert.Equal(t, "transient", s.Error)
	assert.True(t, s.ShouldRetry)
}
