package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/flowforge/core/internal/domain"
	"github.com/flowforge/core/internal/storage/models"
)

var _ WorkflowRepository = (*BunWorkflowRepository)(nil)

// BunWorkflowRepository implements WorkflowRepository using Bun ORM.
// Grounded on the teacher's storage.WorkflowRepository (RunInTx-wrapped
// multi-table writes, relation-loaded reads).
type BunWorkflowRepository struct {
	db *bun.DB
}

// NewBunWorkflowRepository returns a Bun-backed WorkflowRepository.
func NewBunWorkflowRepository(db *bun.DB) *BunWorkflowRepository {
	return &BunWorkflowRepository{db: db}
}

func (r *BunWorkflowRepository) loadByQuery(ctx context.Context, where string, arg interface{}) (*domain.Workflow, error) {
	m := &models.WorkflowModel{}
	err := r.db.NewSelect().
		Model(m).
		Relation("Nodes").
		Relation("Nodes.ComponentConfig").
		Relation("Edges").
		Where(where, arg).
		Where("w.deleted_at IS NULL").
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrWorkflowNotFound
		}
		return nil, fmt.Errorf("storage: load workflow: %w", err)
	}
	return models.WorkflowToDomain(m), nil
}

// FindByID loads a workflow and its nodes/edges/component_configs by id.
func (r *BunWorkflowRepository) FindByID(ctx context.Context, id string) (*domain.Workflow, error) {
	return r.loadByQuery(ctx, "w.id = ?", id)
}

// FindBySlug loads a workflow by its unique slug.
func (r *BunWorkflowRepository) FindBySlug(ctx context.Context, slug string) (*domain.Workflow, error) {
	return r.loadByQuery(ctx, "w.slug = ?", slug)
}

// FindDefault returns the workflow flagged is_default, used by the trigger
// resolver's fallback when no trigger node matches an incoming event.
func (r *BunWorkflowRepository) FindDefault(ctx context.Context) (*domain.Workflow, error) {
	m := &models.WorkflowModel{}
	err := r.db.NewSelect().
		Model(m).
		Relation("Nodes").
		Relation("Nodes.ComponentConfig").
		Relation("Edges").
		Where("w.is_default = TRUE AND w.is_active = TRUE AND w.deleted_at IS NULL").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrWorkflowNotFound
		}
		return nil, fmt.Errorf("storage: load default workflow: %w", err)
	}
	return models.WorkflowToDomain(m), nil
}

// FindActiveTriggerNodes returns every active, non-deleted workflow that
// contains at least one node of componentType, ordered by
// (node priority DESC, node id ASC) per spec.md §4.9. Workflows are fully
// hydrated so the resolver can inspect trigger filters in TriggerConfig.
func (r *BunWorkflowRepository) FindActiveTriggerNodes(ctx context.Context, componentType domain.ComponentType) ([]*domain.Workflow, error) {
	var nodeModels []*models.NodeModel
	err := r.db.NewSelect().
		Model(&nodeModels).
		Relation("Workflow").
		Relation("ComponentConfig").
		Join("JOIN workflows AS w ON w.id = n.workflow_id").
		Where("n.component_type = ?", string(componentType)).
		Where("w.is_active = TRUE AND w.deleted_at IS NULL").
		OrderExpr("cc.priority DESC, n.node_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage: find active trigger nodes: %w", err)
	}

	seen := make(map[string]bool)
	var out []*domain.Workflow
	for _, nm := range nodeModels {
		if nm.Workflow == nil || seen[nm.Workflow.ID] {
			continue
		}
		seen[nm.Workflow.ID] = true
		out = append(out, r.hydrate(ctx, nm.Workflow.ID))
	}
	return out, nil
}

// hydrate re-loads a workflow by id with full relations, swallowing
// not-found (a race with a concurrent delete) by returning nil, which the
// caller's seen-map already filters from double-appending.
func (r *BunWorkflowRepository) hydrate(ctx context.Context, id string) *domain.Workflow {
	w, err := r.FindByID(ctx, id)
	if err != nil {
		return nil
	}
	return w
}

// Create persists a new workflow with its nodes and edges in one transaction.
func (r *BunWorkflowRepository) Create(ctx context.Context, w *domain.Workflow) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		wm := domainToWorkflowModel(w)
		if _, err := tx.NewInsert().Model(wm).Exec(ctx); err != nil {
			return fmt.Errorf("storage: create workflow: %w", err)
		}
		return r.writeNodesAndEdges(ctx, tx, w)
	})
}

// Update replaces a workflow's metadata and its full nodes/edges set.
// Node/edge deletion-and-reinsert (rather than a diff/merge) is acceptable
// here: the core only reads workflows, never edits them live mid-execution.
func (r *BunWorkflowRepository) Update(ctx context.Context, w *domain.Workflow) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		wm := domainToWorkflowModel(w)
		_, err := tx.NewUpdate().
			Model(wm).
			Column("slug", "name", "description", "is_active", "is_default", "tags",
				"max_execution_seconds", "input_schema", "output_schema",
				"error_handler_workflow_id", "updated_at").
			Where("id = ?", w.ID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("storage: update workflow: %w", err)
		}

		if _, err := tx.NewDelete().Model((*models.EdgeModel)(nil)).Where("workflow_id = ?", w.ID).Exec(ctx); err != nil {
			return fmt.Errorf("storage: clear edges: %w", err)
		}
		if _, err := tx.NewDelete().Model((*models.NodeModel)(nil)).Where("workflow_id = ?", w.ID).Exec(ctx); err != nil {
			return fmt.Errorf("storage: clear nodes: %w", err)
		}
		return r.writeNodesAndEdges(ctx, tx, w)
	})
}

func (r *BunWorkflowRepository) writeNodesAndEdges(ctx context.Context, tx bun.Tx, w *domain.Workflow) error {
	for _, n := range w.Nodes {
		if n.ComponentConfig != nil && n.ComponentConfig.ID == "" {
			n.ComponentConfig.ID = uuid.NewString()
			cc := domainToComponentConfigModel(n.ComponentConfig)
			if _, err := tx.NewInsert().Model(cc).Exec(ctx); err != nil {
				return fmt.Errorf("storage: create component_config: %w", err)
			}
		}
	}
	if len(w.Nodes) > 0 {
		nodeModels := make([]*models.NodeModel, 0, len(w.Nodes))
		for _, n := range w.Nodes {
			nm := domainToNodeModel(n, w.ID)
			if nm.ID == "" {
				nm.ID = uuid.NewString()
			}
			nodeModels = append(nodeModels, nm)
		}
		if _, err := tx.NewInsert().Model(&nodeModels).Exec(ctx); err != nil {
			return fmt.Errorf("storage: create nodes: %w", err)
		}
	}
	if len(w.Edges) > 0 {
		edgeModels := make([]*models.EdgeModel, 0, len(w.Edges))
		for _, e := range w.Edges {
			em := domainToEdgeModel(e, w.ID)
			if em.ID == "" {
				em.ID = uuid.NewString()
			}
			edgeModels = append(edgeModels, em)
		}
		if _, err := tx.NewInsert().Model(&edgeModels).Exec(ctx); err != nil {
			return fmt.Errorf("storage: create edges: %w", err)
		}
	}
	return nil
}
