package template

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// resolvePath resolves a dotted "root.a.b.c" path against the context: root
// is either "trigger", "user_context", or a node_id looked up in NodeOutputs.
func resolvePath(ctx *Context, path string) (interface{}, bool) {
	parts := splitDotPath(path)
	if len(parts) == 0 {
		return nil, false
	}

	root := parts[0]
	rest := parts[1:]

	var value interface{}
	var found bool
	switch root {
	case "trigger":
		value, found = interface{}(ctx.Trigger), ctx.Trigger != nil
	case "user_context":
		value, found = interface{}(ctx.UserContext), ctx.UserContext != nil
	default:
		value, found = ctx.NodeOutputs[root]
	}
	if !found {
		return nil, false
	}

	for _, p := range rest {
		value = resolveField(value, p)
		if value == nil {
			return nil, false
		}
	}
	return value, true
}

func splitDotPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// resolveField reads one field/index step. Supports map access, struct
// reflection, and a JSON round-trip fallback for arbitrary values, matching
// the degrade-gracefully posture of the rest of this package.
func resolveField(value interface{}, field string) interface{} {
	if value == nil {
		return nil
	}

	if idx, isIndex := arrayIndex(field); isIndex {
		return indexValue(value, idx)
	}

	if m, ok := value.(map[string]interface{}); ok {
		return m[field]
	}

	v := reflect.ValueOf(value)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() == reflect.Struct {
		f := v.FieldByName(field)
		if f.IsValid() {
			return f.Interface()
		}
	}

	if data, err := json.Marshal(value); err == nil {
		var m map[string]interface{}
		if err := json.Unmarshal(data, &m); err == nil {
			return m[field]
		}
	}
	return nil
}

func arrayIndex(field string) (int, bool) {
	if !strings.HasPrefix(field, "[") || !strings.HasSuffix(field, "]") {
		return 0, false
	}
	n, err := strconv.Atoi(field[1 : len(field)-1])
	if err != nil {
		return 0, false
	}
	return n, true
}

func indexValue(value interface{}, idx int) interface{} {
	v := reflect.ValueOf(value)
	if (v.Kind() == reflect.Slice || v.Kind() == reflect.Array) && idx >= 0 && idx < v.Len() {
		return v.Index(idx).Interface()
	}
	return nil
}

func valueToString(value interface{}) string {
	if value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case bool:
		return fmt.Sprintf("%t", v)
	case float32, float64, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%v", v)
	default:
		if data, err := json.Marshal(v); err == nil {
			return string(data)
		}
		return fmt.Sprintf("%v", v)
	}
}
