package component

import (
	"context"

	"github.com/flowforge/core/internal/domain"
	"github.com/flowforge/core/internal/state"
)

// InterruptError signals that a node cannot complete synchronously: the
// orchestrator must suspend the execution (creating a PendingTask, in the
// human_confirmation case) and resume the node later via `_resume_input`.
type InterruptError struct {
	Prompt string
}

func (e *InterruptError) Error() string { return "component: execution interrupted: " + e.Prompt }

const (
	// RouteConfirmed and RouteCancelled are the two routes a
	// human_confirmation node can write to `_route`.
	RouteConfirmed = "confirmed"
	RouteCancelled = "cancelled"
)

// HumanConfirmationFactory builds human_confirmation runners: the first
// invocation (no pending resume input) returns an InterruptError; on resume
// it normalises the resume input to confirmed|cancelled and writes `_route`.
type HumanConfirmationFactory struct{}

// Build implements Factory.
func (HumanConfirmationFactory) Build(node *domain.Node) (Runner, error) {
	prompt := ""
	if node.ComponentConfig != nil {
		prompt = node.ComponentConfig.SystemPrompt
	}

	return func(_ context.Context, s *state.State) (Delta, error) {
		if s.ResumeInput == nil {
			return nil, &InterruptError{Prompt: prompt}
		}
		input := state.ConsumeResumeInput(s)
		return Delta{"_route": normaliseConfirmation(input)}, nil
	}, nil
}

func normaliseConfirmation(input interface{}) string {
	s, _ := input.(string)
	switch s {
	case "yes", "confirm", "confirmed", "ok", "approve", "approved":
		return RouteConfirmed
	default:
		return RouteCancelled
	}
}
