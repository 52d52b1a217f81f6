package domain

import (
	"encoding/json"
	"time"
)

// ComponentConfig is the polymorphic configuration attached to a Node. Its
// meaningful field subset depends on the owning node's ComponentType; unused
// fields are left zero rather than split into per-variant structs, matching
// the single-wide-table layout spec.md's design notes call out as valid.
type ComponentConfig struct {
	ID            string        `json:"id"`
	ComponentType ComponentType `json:"component_type"`
	UpdatedAt     time.Time     `json:"updated_at"`

	// agent / categorizer
	SystemPrompt string          `json:"system_prompt,omitempty"`
	ExtraConfig  json.RawMessage `json:"extra_config,omitempty"`

	// model-tuning fields (agent, ai_model, categorizer)
	ModelName        string  `json:"model_name,omitempty"`
	Temperature      float64 `json:"temperature,omitempty"`
	MaxTokens        int     `json:"max_tokens,omitempty"`
	TopP             float64 `json:"top_p,omitempty"`
	FrequencyPenalty float64 `json:"frequency_penalty,omitempty"`
	PresencePenalty  float64 `json:"presence_penalty,omitempty"`
	TimeoutSeconds   int     `json:"timeout_seconds,omitempty"`
	MaxRetries       int     `json:"max_retries,omitempty"`
	ResponseFormat   string  `json:"response_format,omitempty"`
	LLMCredentialID  string  `json:"llm_credential_id,omitempty"`

	// LLMModelConfigID, when set, indirects to another ComponentConfig of
	// type ai_model: the runtime "llm edge" picks which model config a
	// node actually resolves against.
	LLMModelConfigID string `json:"llm_model_config_id,omitempty"`

	// trigger_* fields
	CredentialID  string          `json:"credential_id,omitempty"`
	IsActive      bool            `json:"is_active,omitempty"`
	Priority      int             `json:"priority,omitempty"`
	TriggerConfig json.RawMessage `json:"trigger_config,omitempty"`

	// router/switch/categorizer/filter rule set and loop/merge/code knobs
	// live in ExtraConfig, decoded by the owning internal/component factory
	// rather than hoisted into named fields here — they vary per
	// component_type and are not shared the way the fields above are.
}

// RouteRule is one entry of a router/switch/filter rule set, decoded from
// ComponentConfig.ExtraConfig by internal/component.
type RouteRule struct {
	ID       string      `json:"id"`
	Field    string      `json:"field"`
	Operator string      `json:"operator"`
	Value    interface{} `json:"value"`
}

// Validate checks required fields given the owning component type.
func (c *ComponentConfig) Validate(ct ComponentType) error {
	if ct == ComponentAgent && c.SystemPrompt == "" {
		return &ValidationError{Field: "system_prompt", Message: "agent requires a system prompt"}
	}
	if ct.IsTrigger() && c.TriggerConfig == nil {
		return &ValidationError{Field: "trigger_config", Message: "trigger node requires trigger_config"}
	}
	return nil
}
