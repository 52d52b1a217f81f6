// Package tools builds the internal/component.Tool instances bound to an
// agent node via its outgoing `tool` (and legacy `memory`) edges. Grounded
// on the teacher's pkg/executor/builtin package, which registers one
// executor per tool-bundle component type (http.go, calculator via
// function_call.go-style adapters, telegram_*.go, google_drive.go, ...)
// into a shared pkg/executor.Registry; this package keeps that one-
// factory-per-component-type shape but narrows each factory's signature
// from the teacher's generic Execute(ctx, config, input) to the
// component.Tool contract an agent's tool-calling loop invokes.
//
// Platform-management bundles (scheduler_tools, epic_tools, task_tools,
// workflow_create, workflow_discover, identify_user, create_agent_user,
// whoami, platform_api, system_health, get_totp_code) wrap a narrow
// PlatformAPI collaborator interface rather than reimplementing CRUD over
// workflows/users/credentials — that surface is an external collaborator
// per spec.md §1's Non-goals ("end-user CRUD APIs for editing graphs").
package tools

import (
	"github.com/flowforge/core/internal/component"
	"github.com/flowforge/core/internal/domain"
)

// Builder constructs the component.Tool bound to one sub-component node.
// Some builders (http_request, run_command, calculator, datetime) need no
// external dependency; others close over a collaborator injected at
// Registry construction time.
type Builder func(node *domain.Node) (component.Tool, error)

// Registry maps a sub-component's ComponentType to the Builder that turns
// one of its persisted nodes into a callable component.Tool.
type Registry struct {
	builders map[domain.ComponentType]Builder
}

// NewRegistry wires the default tool-bundle builders. deps supplies the
// external collaborators (platform API, memory store, web search) that a
// handful of bundles need; any field left nil disables that bundle (its
// Build call returns an error) without affecting the others.
func NewRegistry(deps Dependencies) *Registry {
	r := &Registry{builders: make(map[domain.ComponentType]Builder)}

	r.builders[domain.ComponentCalculator] = buildCalculator
	r.builders[domain.ComponentDatetime] = buildDatetime
	r.builders[domain.ComponentHTTPRequest] = buildHTTPRequest
	r.builders[domain.ComponentRunCommand] = buildRunCommand
	r.builders[domain.ComponentWebSearch] = deps.buildWebSearch
	r.builders[domain.ComponentMemoryRead] = deps.buildMemoryRead
	r.builders[domain.ComponentMemoryWrite] = deps.buildMemoryWrite
	r.builders[domain.ComponentIdentifyUser] = deps.buildIdentifyUser
	r.builders[domain.ComponentCreateAgentUser] = deps.buildCreateAgentUser
	r.builders[domain.ComponentWhoami] = deps.buildWhoami
	r.builders[domain.ComponentPlatformAPI] = deps.buildPlatformAPI
	r.builders[domain.ComponentSchedulerTools] = deps.buildSchedulerTools
	r.builders[domain.ComponentEpicTools] = deps.buildEpicTools
	r.builders[domain.ComponentTaskTools] = deps.buildTaskTools
	r.builders[domain.ComponentWorkflowCreate] = deps.buildWorkflowCreate
	r.builders[domain.ComponentWorkflowDiscover] = deps.buildWorkflowDiscover
	r.builders[domain.ComponentSystemHealth] = deps.buildSystemHealth
	r.builders[domain.ComponentGetTOTPCode] = deps.buildGetTOTPCode

	return r
}

// Build dispatches node.ComponentType to its registered Builder.
func (r *Registry) Build(node *domain.Node) (component.Tool, error) {
	b, ok := r.builders[node.ComponentType]
	if !ok {
		return nil, &domain.ValidationError{Field: "component_type", Message: "no tool builder registered for " + string(node.ComponentType)}
	}
	return b(node)
}
