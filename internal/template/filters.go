package template

import "strings"

// applyFilter runs one pipeline filter. The ok return is false only on
// malformed filter syntax; a filter seeing an unfound value either supplies
// a default (making it found) or passes the not-found state through.
func applyFilter(filter string, value interface{}, found bool) (interface{}, bool, bool) {
	name, arg, hasArg := strings.Cut(filter, ":")
	name = strings.TrimSpace(name)

	switch name {
	case "upper":
		if !found {
			return value, found, true
		}
		return strings.ToUpper(valueToString(value)), true, true

	case "lower":
		if !found {
			return value, found, true
		}
		return strings.ToLower(valueToString(value)), true, true

	case "default":
		if found && valueToString(value) != "" {
			return value, true, true
		}
		return unquote(arg), true, true

	case "ternary":
		// ternary:"whenTrue":"whenFalse"
		parts := strings.SplitN(arg, ":", 2)
		if !hasArg || len(parts) != 2 {
			return value, found, false
		}
		if found && isTruthy(value) {
			return unquote(parts[0]), true, true
		}
		return unquote(parts[1]), true, true

	default:
		return value, found, false
	}
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

func isTruthy(value interface{}) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		return v != "" && v != "false"
	case nil:
		return false
	default:
		return true
	}
}
