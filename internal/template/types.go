// Package template resolves the mustache-style {{ }} placeholders found in
// a node's system_prompt and extra_config string fields at run time.
//
// Supported addressing:
//   - {{ node_id.port }}  — another node's resolved output field
//   - {{ trigger.field }} — a field of the triggering payload
//
// A small filter pipeline is supported after a pipe: {{ node.field | upper }},
// {{ node.field | default:"none" }}, {{ node.field | ternary:"yes":"no" }}.
// On any resolution error (unknown node, missing field, bad syntax) the
// original source string is returned unchanged — callers never see template
// errors surface as node failures.
package template

import "regexp"

// Context carries the values addressable from a template.
type Context struct {
	// NodeOutputs maps node_id -> its resolved output value (state.node_outputs).
	NodeOutputs map[string]interface{}
	// Trigger is the triggering payload (state.trigger).
	Trigger map[string]interface{}
	// UserContext carries ambient per-execution values (state.user_context).
	UserContext map[string]interface{}
}

// NewContext returns an empty, ready-to-use Context.
func NewContext() *Context {
	return &Context{
		NodeOutputs: map[string]interface{}{},
		Trigger:     map[string]interface{}{},
		UserContext: map[string]interface{}{},
	}
}

var placeholderPattern = regexp.MustCompile(`\{\{\s*([^}]+?)\s*\}\}`)

// HasPlaceholders reports whether s contains any {{ }} markers.
func HasPlaceholders(s string) bool {
	return placeholderPattern.MatchString(s)
}
