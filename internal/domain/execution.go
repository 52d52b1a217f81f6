package domain

import (
	"encoding/json"
	"time"
)

// ExecutionStatus is the lifecycle state of a WorkflowExecution.
type ExecutionStatus string

const (
	ExecutionPending     ExecutionStatus = "pending"
	ExecutionRunning     ExecutionStatus = "running"
	ExecutionInterrupted ExecutionStatus = "interrupted"
	ExecutionCompleted   ExecutionStatus = "completed"
	ExecutionFailed      ExecutionStatus = "failed"
	ExecutionCancelled   ExecutionStatus = "cancelled"
)

// Terminal reports whether s is one the orchestrator will never transition
// out of on its own.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case ExecutionCompleted, ExecutionFailed, ExecutionCancelled:
		return true
	default:
		return false
	}
}

// Execution is one run of a Workflow, keyed by a UUID execution_id.
type Execution struct {
	ExecutionID       string          `json:"execution_id"`
	WorkflowID        string          `json:"workflow_id"`
	TriggerNodeID     string          `json:"trigger_node_id,omitempty"`
	ParentExecutionID string          `json:"parent_execution_id,omitempty"`
	ParentNodeID      string          `json:"parent_node_id,omitempty"`
	UserProfileID     string          `json:"user_profile_id,omitempty"`
	ThreadID          string          `json:"thread_id"`
	Status            ExecutionStatus `json:"status"`
	TriggerPayload    json.RawMessage `json:"trigger_payload,omitempty"`
	FinalOutput       json.RawMessage `json:"final_output,omitempty"`
	RetryCount        int             `json:"retry_count"`
	MaxRetries        int             `json:"max_retries"`
	ErrorMessage      string          `json:"error_message,omitempty"`

	TotalInputTokens  int64   `json:"total_input_tokens"`
	TotalOutputTokens int64   `json:"total_output_tokens"`
	TotalCostUSD      float64 `json:"total_cost_usd"`
	LLMCalls          int     `json:"llm_calls"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// TotalTokens is a derived convenience matching the invariant
// total_tokens = total_input_tokens + total_output_tokens.
func (e *Execution) TotalTokens() int64 {
	return e.TotalInputTokens + e.TotalOutputTokens
}

// ThreadIDFor canonicalises the thread_id scheme used for agent
// conversation-memory checkpoints: "<user_id>:<chat_id>:<workflow_id>" when
// chatID is non-empty, else "<user_id>:<workflow_id>". Both the agent
// component and any administrative cleanup must derive thread_id this way.
func ThreadIDFor(userID, chatID, workflowID string) string {
	if chatID != "" {
		return userID + ":" + chatID + ":" + workflowID
	}
	return userID + ":" + workflowID
}

// LogStatus is the per-attempt outcome recorded in an ExecutionLog.
type LogStatus string

const (
	LogRunning     LogStatus = "running"
	LogSuccess     LogStatus = "success"
	LogFailed      LogStatus = "failed"
	LogSkipped     LogStatus = "skipped"
	LogInterrupted LogStatus = "interrupted"
)

// Terminal reports whether s is a final outcome for one node attempt.
func (s LogStatus) Terminal() bool {
	switch s {
	case LogSuccess, LogFailed, LogSkipped, LogInterrupted:
		return true
	default:
		return false
	}
}

// ExecutionLog is one row per node attempt.
type ExecutionLog struct {
	ID          string          `json:"id"`
	ExecutionID string          `json:"execution_id"`
	NodeID      string          `json:"node_id"`
	Status      LogStatus       `json:"status"`
	Input       json.RawMessage `json:"input,omitempty"`
	Output      json.RawMessage `json:"output,omitempty"`
	Error       string          `json:"error,omitempty"`
	ErrorCode   string          `json:"error_code,omitempty"`
	RetryCount  int             `json:"retry_count"`
	DurationMs  int64           `json:"duration_ms"`
	Timestamp   time.Time       `json:"timestamp"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

// PendingTask exists while an execution is suspended on human confirmation.
// TaskID is an 8-char hex string, exclusively owned by the orchestrator.
type PendingTask struct {
	TaskID         string    `json:"task_id"`
	ExecutionID    string    `json:"execution_id"`
	UserProfileID  string    `json:"user_profile_id,omitempty"`
	ExternalChatID string    `json:"external_chat_id,omitempty"`
	NodeID         string    `json:"node_id"`
	Prompt         string    `json:"prompt"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// Expired reports whether the task has passed its ExpiresAt relative to now.
func (t *PendingTask) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// ScheduledJobStatus is the lifecycle state of a ScheduledJob.
type ScheduledJobStatus string

const (
	ScheduledJobActive  ScheduledJobStatus = "active"
	ScheduledJobPaused  ScheduledJobStatus = "paused"
	ScheduledJobStopped ScheduledJobStatus = "stopped"
	ScheduledJobDead    ScheduledJobStatus = "dead"
	ScheduledJobDone    ScheduledJobStatus = "done"
)

// ScheduledJob recurrently re-fires a workflow trigger on an interval,
// bounded by TotalRepeats (0 = unbounded) and MaxRetries per fire.
type ScheduledJob struct {
	ID              string             `json:"id"`
	WorkflowID      string             `json:"workflow_id"`
	TriggerNodeID   string             `json:"trigger_node_id"`
	UserProfileID   string             `json:"user_profile_id,omitempty"`
	IntervalSeconds int                `json:"interval_seconds"`
	TotalRepeats    int                `json:"total_repeats"`
	MaxRetries      int                `json:"max_retries"`
	TimeoutSeconds  int                `json:"timeout_seconds"`
	TriggerPayload  json.RawMessage    `json:"trigger_payload,omitempty"`

	Status        ScheduledJobStatus `json:"status"`
	CurrentRepeat int                `json:"current_repeat"`
	CurrentRetry  int                `json:"current_retry"`
	NextRunAt     *time.Time         `json:"next_run_at,omitempty"`
	LastRunAt     *time.Time         `json:"last_run_at,omitempty"`
	RunCount      int                `json:"run_count"`
	ErrorCount    int                `json:"error_count"`
	LastError     string             `json:"last_error,omitempty"`
}

// Bounded reports whether the job has a finite number of repeats.
func (j *ScheduledJob) Bounded() bool { return j.TotalRepeats > 0 }

// Exhausted reports whether a bounded job has reached its repeat count.
func (j *ScheduledJob) Exhausted() bool {
	return j.Bounded() && j.CurrentRepeat >= j.TotalRepeats
}
