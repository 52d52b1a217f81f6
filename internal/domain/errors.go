package domain

import "errors"

// Sentinel errors returned by domain lookups and validation, modeled on the
// teacher's pkg/models/errors.go grouping.
var (
	ErrWorkflowNotFound  = errors.New("workflow not found")
	ErrNodeNotFound      = errors.New("node not found")
	ErrEdgeNotFound      = errors.New("edge not found")
	ErrInvalidWorkflow   = errors.New("invalid workflow")
	ErrNoExecutableNodes = errors.New("workflow has no executable nodes")

	ErrExecutionNotFound = errors.New("execution not found")
	ErrExecutionTerminal = errors.New("execution already in a terminal state")

	ErrPendingTaskNotFound   = errors.New("pending task not found")
	ErrPendingTaskExpired    = errors.New("pending task expired")
	ErrScheduledJobNotFound  = errors.New("scheduled job not found")
	ErrComponentConfigNotFound = errors.New("component config not found")
)

// ValidationError reports a single field-level validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
