// Package domain holds the pure value types for workflows, executions and
// their supporting records. Types here carry no persistence or transport
// concerns; see internal/storage/models for the Bun row shapes and
// internal/storage/models/mappers.go for the conversion between the two.
package domain

// ComponentType is the closed set of node kinds a workflow can contain.
type ComponentType string

const (
	ComponentAgent             ComponentType = "agent"
	ComponentAIModel           ComponentType = "ai_model"
	ComponentRouter            ComponentType = "router"
	ComponentSwitch            ComponentType = "switch"
	ComponentCategorizer       ComponentType = "categorizer"
	ComponentLoop              ComponentType = "loop"
	ComponentMerge             ComponentType = "merge"
	ComponentFilter            ComponentType = "filter"
	ComponentHumanConfirmation ComponentType = "human_confirmation"
	ComponentCode              ComponentType = "code"
	ComponentCodeExecute       ComponentType = "code_execute"
	ComponentHTTPRequest       ComponentType = "http_request"
	ComponentRunCommand        ComponentType = "run_command"
	ComponentWebSearch         ComponentType = "web_search"
	ComponentCalculator        ComponentType = "calculator"
	ComponentDatetime          ComponentType = "datetime"
	ComponentOutputParser      ComponentType = "output_parser"
	ComponentMemoryRead        ComponentType = "memory_read"
	ComponentMemoryWrite       ComponentType = "memory_write"
	ComponentIdentifyUser      ComponentType = "identify_user"
	ComponentCreateAgentUser   ComponentType = "create_agent_user"
	ComponentWhoami            ComponentType = "whoami"
	ComponentPlatformAPI       ComponentType = "platform_api"
	ComponentSpawnAndAwait     ComponentType = "spawn_and_await"
	ComponentSchedulerTools    ComponentType = "scheduler_tools"
	ComponentEpicTools         ComponentType = "epic_tools"
	ComponentTaskTools         ComponentType = "task_tools"
	ComponentWorkflowCreate    ComponentType = "workflow_create"
	ComponentWorkflowDiscover  ComponentType = "workflow_discover"
	ComponentSystemHealth      ComponentType = "system_health"
	ComponentWorkflow          ComponentType = "workflow"
	ComponentGetTOTPCode       ComponentType = "get_totp_code"

	// trigger_* variants are open-ended by suffix (trigger_telegram,
	// trigger_webhook, trigger_manual, trigger_workflow, trigger_error,
	// trigger_schedule, ...); IsTrigger below recognizes the prefix rather
	// than enumerating every variant.
)

const triggerPrefix = "trigger_"

// IsTrigger reports whether ct is one of the trigger_* variants.
func (ct ComponentType) IsTrigger() bool {
	s := string(ct)
	return len(s) > len(triggerPrefix) && s[:len(triggerPrefix)] == triggerPrefix
}

// subComponentTypes serve other nodes and are never members of an execution
// DAG; they are discovered laterally via labelled edges (llm/tool/
// output_parser) from their parent node.
var subComponentTypes = map[ComponentType]bool{
	ComponentAIModel:          true,
	ComponentOutputParser:     true,
	ComponentMemoryRead:       true,
	ComponentMemoryWrite:      true,
	ComponentIdentifyUser:     true,
	ComponentCreateAgentUser:  true,
	ComponentWhoami:           true,
	ComponentPlatformAPI:      true,
	ComponentSpawnAndAwait:    true,
	ComponentSchedulerTools:   true,
	ComponentEpicTools:        true,
	ComponentTaskTools:        true,
	ComponentWorkflowCreate:   true,
	ComponentWorkflowDiscover: true,
	ComponentSystemHealth:     true,
	ComponentRunCommand:       true,
	ComponentHTTPRequest:      true,
	ComponentWebSearch:        true,
	ComponentCalculator:       true,
	ComponentDatetime:         true,
	ComponentGetTOTPCode:      true,
}

// IsSubComponent reports whether ct serves other nodes (a tool/model bundle)
// rather than occupying a slot in the executable DAG.
func (ct ComponentType) IsSubComponent() bool {
	return subComponentTypes[ct]
}

// knownComponentTypes backs Valid; trigger_* is matched by prefix instead.
var knownComponentTypes = map[ComponentType]bool{
	ComponentAgent: true, ComponentAIModel: true, ComponentRouter: true,
	ComponentSwitch: true, ComponentCategorizer: true, ComponentLoop: true,
	ComponentMerge: true, ComponentFilter: true, ComponentHumanConfirmation: true,
	ComponentCode: true, ComponentCodeExecute: true, ComponentHTTPRequest: true,
	ComponentRunCommand: true, ComponentWebSearch: true, ComponentCalculator: true,
	ComponentDatetime: true, ComponentOutputParser: true, ComponentMemoryRead: true,
	ComponentMemoryWrite: true, ComponentIdentifyUser: true, ComponentCreateAgentUser: true,
	ComponentWhoami: true, ComponentPlatformAPI: true, ComponentSpawnAndAwait: true,
	ComponentSchedulerTools: true, ComponentEpicTools: true, ComponentTaskTools: true,
	ComponentWorkflowCreate: true, ComponentWorkflowDiscover: true, ComponentSystemHealth: true,
	ComponentWorkflow: true, ComponentGetTOTPCode: true,
}

// Valid reports whether ct is a recognized component type (closed set plus
// any trigger_* variant).
func (ct ComponentType) Valid() bool {
	return ct.IsTrigger() || knownComponentTypes[ct]
}
