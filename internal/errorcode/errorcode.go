// Package errorcode defines the error taxonomy recorded on ExecutionLog rows
// and used to decide retry-vs-fail at the orchestrator boundary. Grounded on
// the teacher's pkg/models/errors.go ValidationError/sentinel-error pattern,
// generalized to a closed string enum instead of package-level error values
// because error codes here cross a persistence boundary (stored in a column)
// rather than staying in-process.
package errorcode

// Code is one of the taxonomy entries from spec.md §7. The set is not
// exhaustive by design — component authors may surface their own string,
// but the ones below drive orchestrator-level retry/propagation decisions.
type Code string

const (
	ValidationError   Code = "VALIDATION_ERROR"
	TriggerNotMatched Code = "TRIGGER_NOT_MATCHED"
	NodeTimeout       Code = "NODE_TIMEOUT"
	SubprocessTimeout Code = "SUBPROCESS_TIMEOUT"
	SecurityViolation Code = "SECURITY_VIOLATION"
	ProviderError     Code = "PROVIDER_ERROR"
	ChildFailed       Code = "CHILD_FAILED"
	Zombie            Code = "ZOMBIE"
	Unrecoverable     Code = "UNRECOVERABLE"
)

// terminalCodes never benefit from a retry — they represent a fixed defect
// (bad definition, sandbox violation) rather than an environment blip.
var terminalCodes = map[Code]bool{
	ValidationError:   true,
	SecurityViolation: true,
	Unrecoverable:     true,
}

// Terminal reports whether c should immediately fail the node rather than
// being retried with backoff.
func (c Code) Terminal() bool {
	return terminalCodes[c]
}

// CodedError pairs an error with a taxonomy code so callers crossing the
// ExecutionLog boundary don't have to re-classify it.
type CodedError struct {
	Code Code
	Err  error
}

func (e *CodedError) Error() string {
	if e.Err == nil {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Err.Error()
}

func (e *CodedError) Unwrap() error { return e.Err }

// New wraps err with a taxonomy code.
func New(code Code, err error) *CodedError {
	return &CodedError{Code: code, Err: err}
}
