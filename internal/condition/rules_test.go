package condition

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func stateFixture() map[string]interface{} {
	return map[string]interface{}{
		"trigger": map[string]interface{}{
			"text":    "hello world",
			"ts":      "2026-01-01T00:00:00Z",
			"tags":    []interface{}{"a", "b"},
			"enabled": true,
		},
		"score": float64(42),
	}
}

func TestEvalEquals(t *testing.T) {
	r := Rule{Field: "trigger.text", Operator: OpEquals, Value: "hello world"}
	assert.True(t, Eval(r, stateFixture()))
}

func TestEvalNotEquals(t *testing.T) {
	r := Rule{Field: "trigger.text", Operator: OpNotEquals, Value: "nope"}
	assert.True(t, Eval(r, stateFixture()))
}

func TestEvalContains(t *testing.T) {
	r := Rule{Field: "trigger.text", Operator: OpContains, Value: "world"}
	assert.True(t, Eval(r, stateFixture()))
}

func TestEvalStartsEndsWith(t *testing.T) {
	state := stateFixture()
	assert.True(t, Eval(Rule{Field: "trigger.text", Operator: OpStartsWith, Value: "hello"}, state))
	assert.True(t, Eval(Rule{Field: "trigger.text", Operator: OpEndsWith, Value: "world"}, state))
}

func TestEvalMatchesRegex(t *testing.T) {
	r := Rule{Field: "trigger.text", Operator: OpMatchesRegex, Value: "^hello"}
	assert.True(t, Eval(r, stateFixture()))
}

func TestEvalNumericComparisons(t *testing.T) {
	state := stateFixture()
	assert.True(t, Eval(Rule{Field: "score", Operator: OpGT, Value: float64(10)}, state))
	assert.True(t, Eval(Rule{Field: "score", Operator: OpLT, Value: float64(100)}, state))
	assert.True(t, Eval(Rule{Field: "score", Operator: OpGTE, Value: float64(42)}, state))
	assert.True(t, Eval(Rule{Field: "score", Operator: OpLTE, Value: float64(42)}, state))
	assert.False(t, Eval(Rule{Field: "score", Operator: OpGT, Value: float64(42)}, state))
}

func TestEvalDateComparisons(t *testing.T) {
	state := stateFixture()
	assert.True(t, Eval(Rule{Field: "trigger.ts", Operator: OpBefore, Value: "2027-01-01T00:00:00Z"}, state))
	assert.True(t, Eval(Rule{Field: "trigger.ts", Operator: OpAfter, Value: "2025-01-01T00:00:00Z"}, state))
}

func TestEvalEmptyChecks(t *testing.T) {
	state := stateFixture()
	assert.False(t, Eval(Rule{Field: "trigger.text", Operator: OpIsEmpty}, state))
	assert.True(t, Eval(Rule{Field: "trigger.text", Operator: OpIsNotEmpty}, state))
	assert.True(t, Eval(Rule{Field: "missing.field", Operator: OpIsEmpty}, state))
	assert.False(t, Eval(Rule{Field: "missing.field", Operator: OpIsNotEmpty}, state))
}

func TestEvalBooleanChecks(t *testing.T) {
	state := stateFixture()
	assert.True(t, Eval(Rule{Field: "trigger.enabled", Operator: OpIsTrue}, state))
	assert.False(t, Eval(Rule{Field: "trigger.enabled", Operator: OpIsFalse}, state))
}

func TestEvalLengthChecks(t *testing.T) {
	state := stateFixture()
	assert.True(t, Eval(Rule{Field: "trigger.tags", Operator: OpLengthEquals, Value: float64(2)}, state))
	assert.True(t, Eval(Rule{Field: "trigger.tags", Operator: OpLengthGT, Value: float64(1)}, state))
	assert.True(t, Eval(Rule{Field: "trigger.tags", Operator: OpLengthLT, Value: float64(3)}, state))
}

func TestEvalUnresolvableFieldIsNonMatch(t *testing.T) {
	r := Rule{Field: "nope.nope", Operator: OpEquals, Value: "x"}
	assert.False(t, Eval(r, stateFixture()))
}

func TestEvalUnknownOperatorIsNonMatch(t *testing.T) {
	r := Rule{Field: "trigger.text", Operator: "bogus", Value: "x"}
	assert.False(t, Eval(r, stateFixture()))
}

func TestFirstMatchReturnsFirstMatchingID(t *testing.T) {
	rules := []Rule{
		{ID: "r1", Field: "trigger.text", Operator: OpContains, Value: "nowhere"},
		{ID: "r2", Field: "trigger.text", Operator: OpContains, Value: "world"},
		{ID: "r3", Field: "trigger.text", Operator: OpContains, Value: "world"},
	}
	assert.Equal(t, "r2", FirstMatch(rules, stateFixture(), false))
}

func TestFirstMatchFallback(t *testing.T) {
	rules := []Rule{{ID: "r1", Field: "trigger.text", Operator: OpContains, Value: "nowhere"}}
	assert.Equal(t, "__other__", FirstMatch(rules, stateFixture(), true))
	assert.Equal(t, "", FirstMatch(rules, stateFixture(), false))
}
