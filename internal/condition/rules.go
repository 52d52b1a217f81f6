package condition

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Rule is one router/switch/filter rule: field is a dotted path resolved
// against a state-shaped map, operator is drawn from the closed set below.
type Rule struct {
	ID       string      `json:"id"`
	Field    string      `json:"field"`
	Operator string      `json:"operator"`
	Value    interface{} `json:"value"`
}

// Operator is the closed comparison-operator vocabulary for router/switch/
// filter rules.
const (
	OpEquals       = "equals"
	OpNotEquals    = "not_equals"
	OpContains     = "contains"
	OpStartsWith   = "starts_with"
	OpEndsWith     = "ends_with"
	OpMatchesRegex = "matches_regex"
	OpGT           = "gt"
	OpLT           = "lt"
	OpGTE          = "gte"
	OpLTE          = "lte"
	OpAfter        = "after"
	OpBefore       = "before"
	OpIsEmpty      = "is_empty"
	OpIsNotEmpty   = "is_not_empty"
	OpIsTrue       = "is_true"
	OpIsFalse      = "is_false"
	OpLengthEquals = "length_equals"
	OpLengthGT     = "length_gt"
	OpLengthLT     = "length_lt"
)

// Eval resolves rule.Field against state and applies rule.Operator. An
// unknown operator or an unresolvable field is a non-match (false), never an
// error, since rules gate routing rather than hard failure.
func Eval(rule Rule, state map[string]interface{}) bool {
	actual, found := fieldByPath(state, rule.Field)

	switch rule.Operator {
	case OpIsEmpty:
		return !found || isEmpty(actual)
	case OpIsNotEmpty:
		return found && !isEmpty(actual)
	case OpIsTrue:
		return found && asBool(actual)
	case OpIsFalse:
		return found && !asBool(actual)
	}

	if !found {
		return false
	}

	switch rule.Operator {
	case OpEquals:
		return equal(actual, rule.Value)
	case OpNotEquals:
		return !equal(actual, rule.Value)
	case OpContains:
		return strings.Contains(toStr(actual), toStr(rule.Value))
	case OpStartsWith:
		return strings.HasPrefix(toStr(actual), toStr(rule.Value))
	case OpEndsWith:
		return strings.HasSuffix(toStr(actual), toStr(rule.Value))
	case OpMatchesRegex:
		re, err := regexp.Compile(toStr(rule.Value))
		return err == nil && re.MatchString(toStr(actual))
	case OpGT:
		return compareNumeric(actual, rule.Value) > 0
	case OpLT:
		return compareNumeric(actual, rule.Value) < 0
	case OpGTE:
		return compareNumeric(actual, rule.Value) >= 0
	case OpLTE:
		return compareNumeric(actual, rule.Value) <= 0
	case OpAfter:
		return compareTime(actual, rule.Value) > 0
	case OpBefore:
		return compareTime(actual, rule.Value) < 0
	case OpLengthEquals:
		return length(actual) == int(toFloat(rule.Value))
	case OpLengthGT:
		return length(actual) > int(toFloat(rule.Value))
	case OpLengthLT:
		return length(actual) < int(toFloat(rule.Value))
	default:
		return false
	}
}

// FirstMatch evaluates rules in order and returns the first matching rule's
// ID. If none match and fallback is true, returns "__other__"; else "".
func FirstMatch(rules []Rule, state map[string]interface{}, fallback bool) string {
	for _, r := range rules {
		if Eval(r, state) {
			return r.ID
		}
	}
	if fallback {
		return "__other__"
	}
	return ""
}

func fieldByPath(state map[string]interface{}, path string) (interface{}, bool) {
	if path == "" {
		return nil, false
	}
	parts := strings.Split(path, ".")
	var cur interface{} = state
	for _, p := range parts {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func isEmpty(v interface{}) bool {
	if v == nil {
		return true
	}
	switch t := v.(type) {
	case string:
		return t == ""
	default:
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Map || rv.Kind() == reflect.Array {
			return rv.Len() == 0
		}
		return false
	}
}

func length(v interface{}) int {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array, reflect.String:
		return rv.Len()
	default:
		return 0
	}
}

func asBool(v interface{}) bool {
	b, ok := v.(bool)
	return ok && b
}

func equal(a, b interface{}) bool {
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func toStr(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func toFloat(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	default:
		return 0
	}
}

func compareNumeric(a, b interface{}) int {
	af, bf := toFloat(a), toFloat(b)
	switch {
	case af < bf:
		return -1
	case af > bf:
		return 1
	default:
		return 0
	}
}

func compareTime(a, b interface{}) int {
	at, aerr := parseTime(a)
	bt, berr := parseTime(b)
	if aerr != nil || berr != nil {
		return 0
	}
	switch {
	case at.Before(bt):
		return -1
	case at.After(bt):
		return 1
	default:
		return 0
	}
}

func parseTime(v interface{}) (time.Time, error) {
	if t, ok := v.(time.Time); ok {
		return t, nil
	}
	return time.Parse(time.RFC3339, toStr(v))
}
