package models

import (
	"time"

	"github.com/uptrace/bun"
)

// WorkflowModel is the row shape for workflows. Grounded on the teacher's
// WorkflowModel, generalized with the orchestration-core-specific columns
// spec.md §6.1 names (slug, is_active, is_default, error_handler_workflow_id,
// max_execution_seconds, input/output schema).
type WorkflowModel struct {
	bun.BaseModel `bun:"table:workflows,alias:w"`

	ID                     string     `bun:"id,pk,type:uuid,default:uuid_generate_v4()"`
	Slug                   string     `bun:"slug,notnull,unique"`
	Name                   string     `bun:"name,notnull"`
	Description            string     `bun:"description"`
	OwnerID                string     `bun:"owner_id,notnull,type:uuid"`
	IsActive               bool       `bun:"is_active,notnull,default:true"`
	IsDefault              bool       `bun:"is_default,notnull,default:false"`
	Tags                   StringList `bun:"tags,type:jsonb"`
	MaxExecutionSeconds    int        `bun:"max_execution_seconds,notnull,default:600"`
	InputSchema            RawJSON    `bun:"input_schema,type:jsonb"`
	OutputSchema           RawJSON    `bun:"output_schema,type:jsonb"`
	ErrorHandlerWorkflowID string     `bun:"error_handler_workflow_id,type:uuid"`
	CreatedAt              time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt              time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
	DeletedAt              *time.Time `bun:"deleted_at"`

	Nodes []*NodeModel `bun:"rel:has-many,join:id=workflow_id"`
	Edges []*EdgeModel `bun:"rel:has-many,join:id=workflow_id"`
}

// StringList stores a string slice as a JSON array column.
type StringList []string

// NodeModel is the row shape for workflow_nodes. Grounded on the teacher's
// NodeModel, generalized to the core's component_type/flags/indirection
// columns instead of the teacher's http/transform/llm node-type set.
type NodeModel struct {
	bun.BaseModel `bun:"table:workflow_nodes,alias:n"`

	ID              string    `bun:"id,pk,type:uuid,default:uuid_generate_v4()"`
	WorkflowID      string    `bun:"workflow_id,notnull,type:uuid"`
	NodeID          string    `bun:"node_id,notnull"`
	ComponentType   string    `bun:"component_type,notnull"`
	ComponentConfigID string  `bun:"component_config_id,type:uuid"`
	SubworkflowID   string    `bun:"subworkflow_id,type:uuid"`
	CodeBlockID     string    `bun:"code_block_id,type:uuid"`
	IsEntryPoint    bool      `bun:"is_entry_point,notnull,default:false"`
	InterruptBefore bool      `bun:"interrupt_before,notnull,default:false"`
	InterruptAfter  bool      `bun:"interrupt_after,notnull,default:false"`
	CreatedAt       time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt       time.Time `bun:"updated_at,notnull,default:current_timestamp"`

	Workflow        *WorkflowModel   `bun:"rel:belongs-to,join:workflow_id=id"`
	ComponentConfig *ComponentConfig `bun:"rel:belongs-to,join:component_config_id=id"`
}

// EdgeModel is the row shape for workflow_edges. Grounded on the teacher's
// EdgeModel (from/to columns), generalized to spec.md's edge_type/edge_label/
// condition_value/condition_mapping/priority columns.
type EdgeModel struct {
	bun.BaseModel `bun:"table:workflow_edges,alias:e"`

	ID               string   `bun:"id,pk,type:uuid,default:uuid_generate_v4()"`
	WorkflowID       string   `bun:"workflow_id,notnull,type:uuid"`
	SourceNodeID     string   `bun:"source_node_id,notnull"`
	TargetNodeID     string   `bun:"target_node_id,notnull"`
	EdgeType         string   `bun:"edge_type,notnull,default:'direct'"`
	EdgeLabel        string   `bun:"edge_label"`
	ConditionValue   string   `bun:"condition_value"`
	ConditionMapping JSONBMap `bun:"condition_mapping,type:jsonb"`
	Priority         int      `bun:"priority,notnull,default:0"`

	Workflow *WorkflowModel `bun:"rel:belongs-to,join:workflow_id=id"`
}

// ComponentConfig is the row shape for component_configs: a single wide
// table covering every component_type's field subset, per spec.md §9's
// design note that a wide-table layout is a valid encoding of the
// polymorphic ComponentConfig. Grounded on the teacher's NodeModel.Config
// JSONBMap column generalized into named columns for the fields the core's
// orchestrator reads directly (model tuning, llm_model_config_id,
// trigger_config) plus an ExtraConfig JSONB catch-all for the rest.
type ComponentConfig struct {
	bun.BaseModel `bun:"table:component_configs,alias:cc"`

	ID            string  `bun:"id,pk,type:uuid,default:uuid_generate_v4()"`
	ComponentType string  `bun:"component_type,notnull"`
	SystemPrompt  string  `bun:"system_prompt"`
	ExtraConfig   RawJSON `bun:"extra_config,type:jsonb"`

	ModelName        string  `bun:"model_name"`
	Temperature      float64 `bun:"temperature"`
	MaxTokens        int     `bun:"max_tokens"`
	TopP             float64 `bun:"top_p"`
	FrequencyPenalty float64 `bun:"frequency_penalty"`
	PresencePenalty  float64 `bun:"presence_penalty"`
	TimeoutSeconds   int     `bun:"timeout_seconds"`
	MaxRetries       int     `bun:"max_retries"`
	ResponseFormat   string  `bun:"response_format"`
	LLMCredentialID  string  `bun:"llm_credential_id,type:uuid"`
	LLMModelConfigID string  `bun:"llm_model_config_id,type:uuid"`

	CredentialID  string  `bun:"credential_id,type:uuid"`
	IsActive      bool    `bun:"is_active,notnull,default:true"`
	Priority      int     `bun:"priority,notnull,default:0"`
	TriggerConfig RawJSON `bun:"trigger_config,type:jsonb"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}
