// Package trigger resolves an inbound event to the workflow and trigger
// node that should handle it. Grounded on the teacher's
// internal/application/trigger.EventListener (event-type-keyed trigger
// groups, Redis pub/sub dispatch), generalized from the teacher's flat
// "first matching trigger wins" model to spec.md §4.9's
// priority-ordered, per-component-type filter model.
package trigger

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/flowforge/core/internal/domain"
	"github.com/flowforge/core/internal/storage"
)

// componentTypeByEventType is the static event_type -> component_type
// table spec.md §4.9 requires.
var componentTypeByEventType = map[string]domain.ComponentType{
	"telegram": "trigger_telegram",
	"webhook":  "trigger_webhook",
	"manual":   "trigger_manual",
	"workflow": "trigger_workflow",
	"error":    "trigger_error",
	"schedule": "trigger_schedule",
}

// Resolution is the resolver's non-error output: a matched workflow and
// the specific trigger node within it that fired.
type Resolution struct {
	Workflow    *domain.Workflow
	TriggerNode *domain.Node
}

// Resolver maps (event_type, event_data) to a Resolution by loading
// candidate workflows from storage and applying per-type filters.
type Resolver struct {
	workflows storage.WorkflowRepository
}

// New builds a Resolver backed by the given workflow repository.
func New(workflows storage.WorkflowRepository) *Resolver {
	return &Resolver{workflows: workflows}
}

// Resolve returns the (workflow, trigger_node) pair matching eventType and
// eventData, or (nil, nil) if nothing matches and no default workflow is
// configured. This is not an error case: spec.md §7 classifies a resolver
// miss as TRIGGER_NOT_MATCHED, which yields no execution rather than a
// failure.
func (r *Resolver) Resolve(ctx context.Context, eventType string, eventData map[string]any) (*Resolution, error) {
	componentType, ok := componentTypeByEventType[eventType]
	if !ok {
		return nil, fmt.Errorf("trigger: unknown event_type %q", eventType)
	}

	workflows, err := r.workflows.FindActiveTriggerNodes(ctx, componentType)
	if err != nil {
		return nil, fmt.Errorf("trigger: load candidate workflows: %w", err)
	}

	for _, w := range workflows {
		for _, n := range w.Nodes {
			if n.ComponentType != componentType {
				continue
			}
			if matches(componentType, n, eventData) {
				return &Resolution{Workflow: w, TriggerNode: n}, nil
			}
		}
	}

	def, err := r.workflows.FindDefault(ctx)
	if err != nil {
		if err == domain.ErrWorkflowNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("trigger: load default workflow: %w", err)
	}
	for _, n := range def.Nodes {
		if n.IsEntryPoint {
			return &Resolution{Workflow: def, TriggerNode: n}, nil
		}
	}
	return nil, nil
}

// matches applies the per-component-type filter spec.md §4.9 defines.
func matches(componentType domain.ComponentType, n *domain.Node, eventData map[string]any) bool {
	cfg := n.ComponentConfig
	if cfg == nil {
		return true
	}

	var filter map[string]any
	if len(cfg.TriggerConfig) > 0 {
		_ = json.Unmarshal(cfg.TriggerConfig, &filter)
	}
	if filter == nil {
		return true
	}

	switch componentType {
	case "trigger_telegram":
		return matchTelegram(filter, eventData)
	case "trigger_webhook":
		return matchEquality(filter, eventData, "path")
	case "trigger_manual", "trigger_workflow", "trigger_error":
		return matchEquality(filter, eventData, "source_workflow")
	default:
		return true
	}
}

func matchTelegram(filter, eventData map[string]any) bool {
	if ids, ok := filter["allowed_user_ids"].([]any); ok && len(ids) > 0 {
		userID, _ := eventData["user_id"]
		found := false
		for _, id := range ids {
			if fmt.Sprintf("%v", id) == fmt.Sprintf("%v", userID) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if pattern, ok := filter["pattern"].(string); ok && pattern != "" {
		text, _ := eventData["text"].(string)
		re, err := regexp.Compile(pattern)
		if err != nil || !re.MatchString(text) {
			return false
		}
	}

	if command, ok := filter["command"].(string); ok && command != "" {
		text, _ := eventData["text"].(string)
		if !strings.HasPrefix(strings.TrimSpace(text), command) {
			return false
		}
	}

	return true
}

func matchEquality(filter, eventData map[string]any, key string) bool {
	want, ok := filter[key]
	if !ok {
		return true
	}
	got, ok := eventData[key]
	if !ok {
		return false
	}
	return fmt.Sprintf("%v", want) == fmt.Sprintf("%v", got)
}
