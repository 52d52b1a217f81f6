package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testContext() *Context {
	return &Context{
		NodeOutputs: map[string]interface{}{
			"A": map[string]interface{}{"output": "hello", "count": 3},
		},
		Trigger:     map[string]interface{}{"text": "hi there"},
		UserContext: map[string]interface{}{"name": "ada"},
	}
}

func TestResolveStringNodeOutput(t *testing.T) {
	e := NewEngine(testContext())
	assert.Equal(t, "hello world", e.ResolveString("{{ A.output }} world"))
}

func TestResolveStringTrigger(t *testing.T) {
	e := NewEngine(testContext())
	assert.Equal(t, "hi there", e.ResolveString("{{ trigger.text }}"))
}

func TestResolveStringUndefinedReturnsOriginal(t *testing.T) {
	e := NewEngine(testContext())
	src := "value is {{ missing.field }}"
	assert.Equal(t, src, e.ResolveString(src))
}

func TestResolveStringUpperFilter(t *testing.T) {
	e := NewEngine(testContext())
	assert.Equal(t, "HELLO", e.ResolveString("{{ A.output | upper }}"))
}

func TestResolveStringDefaultFilter(t *testing.T) {
	e := NewEngine(testContext())
	assert.Equal(t, "fallback", e.ResolveString("{{ missing.field | default:\"fallback\" }}"))
}

func TestResolveStringTernaryFilter(t *testing.T) {
	e := NewEngine(testContext())
	assert.Equal(t, "yes", e.ResolveString("{{ A.output | ternary:\"yes\":\"no\" }}"))
}

func TestResolveConfigWalksNestedStructures(t *testing.T) {
	e := NewEngine(testContext())
	cfg := map[string]interface{}{
		"prompt": "Say {{ A.output }}",
		"nested": map[string]interface{}{"x": "{{ trigger.text }}"},
		"list":   []interface{}{"{{ A.output }}", 42},
	}
	out := e.ResolveConfig(cfg)
	assert.Equal(t, "Say hello", out["prompt"])
	assert.Equal(t, "hi there", out["nested"].(map[string]interface{})["x"])
	assert.Equal(t, "hello", out["list"].([]interface{})[0])
	assert.Equal(t, 42, out["list"].([]interface{})[1])
}

func TestHasPlaceholders(t *testing.T) {
	assert.True(t, HasPlaceholders("{{ a.b }}"))
	assert.False(t, HasPlaceholders("plain text"))
}
