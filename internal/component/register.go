package component

import "github.com/flowforge/core/internal/domain"

// RegisterDefaults binds every executable component type spec.md §4.4
// names to registry. `agent` and `categorizer` take an LLM dependency
// (Provider, ToolResolver, Classifier) injected by the caller since vendor
// request shapes are an explicit Non-goal (spec.md §1); every other
// executable type is self-contained. Tool-bundle types (run_command,
// http_request, memory_read, ...) are sub-components per spec.md §3's
// invariant and never registered here: they are discovered laterally via
// `tool` edges, not built as DAG nodes.
func RegisterDefaults(reg *Registry, agent AgentFactory, categorizer CategorizerFactory) error {
	defaults := map[domain.ComponentType]Factory{
		domain.ComponentAgent:             agent,
		domain.ComponentCategorizer:       categorizer,
		domain.ComponentRouter:            RouterFactory{},
		domain.ComponentSwitch:            RouterFactory{},
		domain.ComponentLoop:              LoopFactory{},
		domain.ComponentMerge:             MergeFactory{},
		domain.ComponentFilter:            FilterFactory{},
		domain.ComponentHumanConfirmation: HumanConfirmationFactory{},
		domain.ComponentCode:              CodeFactory{},
		domain.ComponentCodeExecute:       CodeFactory{},
		domain.ComponentWorkflow:          SubWorkflowFactory{},
	}
	for ct, f := range defaults {
		if err := reg.Register(ct, f); err != nil {
			return err
		}
	}
	return nil
}
