package template

import "strings"

// Engine resolves {{ }} placeholders against one Context.
type Engine struct {
	ctx *Context
}

// NewEngine returns an Engine bound to ctx.
func NewEngine(ctx *Context) *Engine {
	if ctx == nil {
		ctx = NewContext()
	}
	return &Engine{ctx: ctx}
}

// ResolveString substitutes every {{ }} placeholder in s. Any single
// unresolved placeholder causes the ENTIRE original string to be returned
// unchanged, matching the teacher's graceful-degradation behavior — callers
// never see a partially-substituted string.
func (e *Engine) ResolveString(s string) string {
	if !HasPlaceholders(s) {
		return s
	}

	failed := false
	result := placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		if failed {
			return match
		}
		expr := strings.TrimSpace(match[2 : len(match)-2])
		out, ok := e.resolveExpr(expr)
		if !ok {
			failed = true
			return match
		}
		return out
	})

	if failed {
		return s
	}
	return result
}

// resolveExpr resolves one placeholder body, e.g. "node.field | upper".
func (e *Engine) resolveExpr(expr string) (string, bool) {
	segments := strings.Split(expr, "|")
	path := strings.TrimSpace(segments[0])

	value, found := resolvePath(e.ctx, path)

	for _, rawFilter := range segments[1:] {
		var ok bool
		value, found, ok = applyFilter(strings.TrimSpace(rawFilter), value, found)
		if !ok {
			return "", false
		}
	}

	if !found {
		return "", false
	}
	return valueToString(value), true
}

// ResolveConfig walks a decoded JSON-like config tree (map/slice/scalar),
// resolving every string it finds. Non-string leaves pass through as-is.
func (e *Engine) ResolveConfig(config map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(config))
	for k, v := range config {
		out[k] = e.resolveAny(v)
	}
	return out
}

func (e *Engine) resolveAny(v interface{}) interface{} {
	switch t := v.(type) {
	case string:
		return e.ResolveString(t)
	case map[string]interface{}:
		return e.ResolveConfig(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = e.resolveAny(item)
		}
		return out
	default:
		return v
	}
}
