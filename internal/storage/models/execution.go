package models

import (
	"time"

	"github.com/uptrace/bun"
)

// ExecutionModel is the row shape for workflow_executions. Grounded on the
// teacher's ExecutionModel, generalized to the primary-key-is-a-UUID
// (execution_id), parent/child, thread_id and cost-counter columns spec.md
// §3/§6.1 name.
type ExecutionModel struct {
	bun.BaseModel `bun:"table:workflow_executions,alias:we"`

	ExecutionID       string  `bun:"execution_id,pk,type:uuid,default:uuid_generate_v4()"`
	WorkflowID        string  `bun:"workflow_id,notnull,type:uuid"`
	TriggerNodeID     string  `bun:"trigger_node_id"`
	ParentExecutionID string  `bun:"parent_execution_id,type:uuid"`
	ParentNodeID      string  `bun:"parent_node_id"`
	UserProfileID     string  `bun:"user_profile_id,type:uuid"`
	ThreadID          string  `bun:"thread_id,notnull"`
	Status            string  `bun:"status,notnull,default:'pending'"`
	TriggerPayload    RawJSON `bun:"trigger_payload,type:jsonb"`
	FinalOutput       RawJSON `bun:"final_output,type:jsonb"`
	State             RawJSON `bun:"state,type:jsonb"`
	RetryCount        int     `bun:"retry_count,notnull,default:0"`
	MaxRetries        int     `bun:"max_retries,notnull,default:3"`
	ErrorMessage      string  `bun:"error_message"`

	TotalInputTokens  int64   `bun:"total_input_tokens,notnull,default:0"`
	TotalOutputTokens int64   `bun:"total_output_tokens,notnull,default:0"`
	TotalCostUSD      float64 `bun:"total_cost_usd,notnull,default:0"`
	LLMCalls          int     `bun:"llm_calls,notnull,default:0"`

	StartedAt   *time.Time `bun:"started_at"`
	CompletedAt *time.Time `bun:"completed_at"`
	CreatedAt   time.Time  `bun:"created_at,notnull,default:current_timestamp"`
}

// ExecutionLogModel is the row shape for execution_logs: one row per node
// attempt. Grounded on the teacher's NodeExecutionModel, generalized to
// carry a retry_count and error_code instead of the teacher's single
// error string, since spec.md's retry/backoff semantics need to keep every
// attempt rather than overwrite one row per node.
type ExecutionLogModel struct {
	bun.BaseModel `bun:"table:execution_logs,alias:el"`

	ID          int64     `bun:"id,pk,autoincrement"`
	ExecutionID string    `bun:"execution_id,notnull,type:uuid"`
	NodeID      string    `bun:"node_id,notnull"`
	Status      string    `bun:"status,notnull"`
	Input       RawJSON   `bun:"input,type:jsonb"`
	Output      RawJSON   `bun:"output,type:jsonb"`
	Error       string    `bun:"error"`
	ErrorCode   string    `bun:"error_code"`
	RetryCount  int       `bun:"retry_count,notnull,default:0"`
	DurationMs  int64     `bun:"duration_ms,notnull,default:0"`
	Timestamp   time.Time `bun:"timestamp,notnull,default:current_timestamp"`
	Metadata    RawJSON   `bun:"metadata,type:jsonb"`
}

// PendingTaskModel is the row shape for pending_tasks, keyed by an 8-char
// hex task_id per spec.md §3.
type PendingTaskModel struct {
	bun.BaseModel `bun:"table:pending_tasks,alias:pt"`

	TaskID         string    `bun:"task_id,pk"`
	ExecutionID    string    `bun:"execution_id,notnull,type:uuid"`
	UserProfileID  string    `bun:"user_profile_id,type:uuid"`
	ExternalChatID string    `bun:"external_chat_id"`
	NodeID         string    `bun:"node_id,notnull"`
	Prompt         string    `bun:"prompt"`
	ExpiresAt      time.Time `bun:"expires_at,notnull"`
}

// ScheduledJobModel is the row shape for scheduled_jobs.
type ScheduledJobModel struct {
	bun.BaseModel `bun:"table:scheduled_jobs,alias:sj"`

	ID              string  `bun:"id,pk,type:uuid,default:uuid_generate_v4()"`
	WorkflowID      string  `bun:"workflow_id,notnull,type:uuid"`
	TriggerNodeID   string  `bun:"trigger_node_id,notnull"`
	UserProfileID   string  `bun:"user_profile_id,type:uuid"`
	IntervalSeconds int     `bun:"interval_seconds,notnull"`
	TotalRepeats    int     `bun:"total_repeats,notnull,default:0"`
	MaxRetries      int     `bun:"max_retries,notnull,default:3"`
	TimeoutSeconds  int     `bun:"timeout_seconds,notnull,default:600"`
	TriggerPayload  RawJSON `bun:"trigger_payload,type:jsonb"`

	Status        string     `bun:"status,notnull,default:'active'"`
	CurrentRepeat int        `bun:"current_repeat,notnull,default:0"`
	CurrentRetry  int        `bun:"current_retry,notnull,default:0"`
	NextRunAt     *time.Time `bun:"next_run_at"`
	LastRunAt     *time.Time `bun:"last_run_at"`
	RunCount      int        `bun:"run_count,notnull,default:0"`
	ErrorCount    int        `bun:"error_count,notnull,default:0"`
	LastError     string     `bun:"last_error"`
}
