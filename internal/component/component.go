// Package component builds per-node-type runners: each Factory is bound to
// a Node at workflow-build time and returns a Runner, a pure function from
// state to a delta. Grounded on the teacher's pkg/executor.Executor/Manager
// registry (Register/Get/Has/List), generalized from a stateless
// Execute(ctx, config, input) contract to a build-time factory closing over
// a node's resolved configuration, per spec's component-runtime contract.
package component

import (
	"context"
	"fmt"
	"sync"

	"github.com/flowforge/core/internal/domain"
	"github.com/flowforge/core/internal/state"
)

// Delta is the dict a component's Runner returns; internal/state.Merge folds
// it into the execution's running State via the reserved-key rules.
type Delta = map[string]interface{}

// Runner is the pure function a Factory produces for one Node.
type Runner func(ctx context.Context, s *state.State) (Delta, error)

// Factory builds a Runner bound to a specific Node.
type Factory interface {
	Build(node *domain.Node) (Runner, error)
}

// FactoryFunc adapts a plain function to a Factory.
type FactoryFunc func(node *domain.Node) (Runner, error)

// Build calls f.
func (f FactoryFunc) Build(node *domain.Node) (Runner, error) { return f(node) }

// Registry is a thread-safe Factory lookup by component type, grounded on
// pkg/executor.Registry.
type Registry struct {
	mu        sync.RWMutex
	factories map[domain.ComponentType]Factory
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[domain.ComponentType]Factory)}
}

// Register binds a Factory to a component type, replacing any existing one.
func (r *Registry) Register(ct domain.ComponentType, f Factory) error {
	if ct == "" {
		return fmt.Errorf("component: type cannot be empty")
	}
	if f == nil {
		return fmt.Errorf("component: factory cannot be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[ct] = f
	return nil
}

// Get returns the Factory registered for ct.
func (r *Registry) Get(ct domain.ComponentType) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[ct]
	if !ok {
		return nil, fmt.Errorf("component: no factory registered for %q", ct)
	}
	return f, nil
}

// Has reports whether a Factory is registered for ct.
func (r *Registry) Has(ct domain.ComponentType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[ct]
	return ok
}

// List returns every registered component type.
func (r *Registry) List() []domain.ComponentType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]domain.ComponentType, 0, len(r.factories))
	for ct := range r.factories {
		types = append(types, ct)
	}
	return types
}

// Build resolves node's component type in the registry and builds its Runner.
func (r *Registry) Build(node *domain.Node) (Runner, error) {
	f, err := r.Get(node.ComponentType)
	if err != nil {
		return nil, err
	}
	return f.Build(node)
}

// StateAsMap flattens a State into the map tree that router/switch/filter
// rules evaluate dotted field paths against.
func StateAsMap(s *state.State) map[string]interface{} {
	return map[string]interface{}{
		"node_outputs":   s.NodeOutputs,
		"trigger":        s.Trigger,
		"user_context":   s.UserContext,
		"branch_results": s.BranchResults,
		"route":          s.Route,
		"output":         s.Output,
		"current_node":   s.CurrentNode,
	}
}
