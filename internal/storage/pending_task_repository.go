package storage

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/flowforge/core/internal/domain"
	"github.com/flowforge/core/internal/storage/models"
)

var _ PendingTaskRepository = (*BunPendingTaskRepository)(nil)

// BunPendingTaskRepository implements PendingTaskRepository using Bun ORM.
type BunPendingTaskRepository struct {
	db *bun.DB
}

// NewBunPendingTaskRepository returns a Bun-backed PendingTaskRepository.
func NewBunPendingTaskRepository(db *bun.DB) *BunPendingTaskRepository {
	return &BunPendingTaskRepository{db: db}
}

// NewTaskID generates the 8-char hex task_id spec.md §3 specifies.
func NewTaskID() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("storage: generate task id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Create inserts a new pending_tasks row, generating a task_id if unset.
func (r *BunPendingTaskRepository) Create(ctx context.Context, t *domain.PendingTask) error {
	if t.TaskID == "" {
		id, err := NewTaskID()
		if err != nil {
			return err
		}
		t.TaskID = id
	}
	m := models.PendingTaskFromDomain(t)
	if _, err := r.db.NewInsert().Model(m).Exec(ctx); err != nil {
		return fmt.Errorf("storage: create pending task: %w", err)
	}
	return nil
}

// FindByID loads a pending task by its task_id.
func (r *BunPendingTaskRepository) FindByID(ctx context.Context, taskID string) (*domain.PendingTask, error) {
	m := &models.PendingTaskModel{}
	err := r.db.NewSelect().Model(m).Where("task_id = ?", taskID).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPendingTaskNotFound
		}
		return nil, fmt.Errorf("storage: find pending task: %w", err)
	}
	return models.PendingTaskToDomain(m), nil
}

// FindByExecution loads the pending task (if any) for an execution. An
// execution owns at most one pending task at a time (spec.md §3: exclusive
// ownership by the orchestrator).
func (r *BunPendingTaskRepository) FindByExecution(ctx context.Context, executionID string) (*domain.PendingTask, error) {
	m := &models.PendingTaskModel{}
	err := r.db.NewSelect().Model(m).Where("execution_id = ?", executionID).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPendingTaskNotFound
		}
		return nil, fmt.Errorf("storage: find pending task by execution: %w", err)
	}
	return models.PendingTaskToDomain(m), nil
}

// Delete removes a pending task, called once the orchestrator consumes its
// resume input.
func (r *BunPendingTaskRepository) Delete(ctx context.Context, taskID string) error {
	_, err := r.db.NewDelete().Model((*models.PendingTaskModel)(nil)).Where("task_id = ?", taskID).Exec(ctx)
	if err != nil {
		return fmt.Errorf("storage: delete pending task: %w", err)
	}
	return nil
}
