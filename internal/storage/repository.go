// Package storage defines the persistence-adapter interfaces the core
// depends on and their Bun/PostgreSQL-backed implementations. Grounded on
// the teacher's internal/domain/repository interfaces and
// internal/infrastructure/storage/*_repository.go implementations; this
// package folds "domain" interface + "infrastructure" implementation into
// one package scoped to the tables spec.md §6.1 names.
package storage

import (
	"context"
	"time"

	"github.com/flowforge/core/internal/domain"
	"github.com/flowforge/core/internal/state"
)

// WorkflowRepository loads persisted workflow definitions, including their
// nodes/edges/component_configs relations.
type WorkflowRepository interface {
	FindByID(ctx context.Context, id string) (*domain.Workflow, error)
	FindBySlug(ctx context.Context, slug string) (*domain.Workflow, error)
	FindDefault(ctx context.Context) (*domain.Workflow, error)
	FindActiveTriggerNodes(ctx context.Context, componentType domain.ComponentType) ([]*domain.Workflow, error)
	Create(ctx context.Context, w *domain.Workflow) error
	Update(ctx context.Context, w *domain.Workflow) error
}

// ExecutionRepository persists WorkflowExecution rows.
type ExecutionRepository interface {
	Create(ctx context.Context, e *domain.Execution) error
	Update(ctx context.Context, e *domain.Execution) error
	FindByID(ctx context.Context, id string) (*domain.Execution, error)
	FindChildren(ctx context.Context, parentExecutionID string) ([]*domain.Execution, error)
	FindStaleRunning(ctx context.Context, olderThan time.Time) ([]*domain.Execution, error)
}

// ExecutionLogRepository persists one row per node attempt.
type ExecutionLogRepository interface {
	Create(ctx context.Context, l *domain.ExecutionLog) error
	FindByExecution(ctx context.Context, executionID string) ([]*domain.ExecutionLog, error)
	FindLatestByNode(ctx context.Context, executionID, nodeID string) (*domain.ExecutionLog, error)
	LastLogTimestamp(ctx context.Context, executionID string) (time.Time, error)
}

// PendingTaskRepository persists human-confirmation tickets.
type PendingTaskRepository interface {
	Create(ctx context.Context, t *domain.PendingTask) error
	FindByID(ctx context.Context, taskID string) (*domain.PendingTask, error)
	FindByExecution(ctx context.Context, executionID string) (*domain.PendingTask, error)
	Delete(ctx context.Context, taskID string) error
}

// ScheduledJobRepository persists recurring-trigger bookkeeping.
type ScheduledJobRepository interface {
	Create(ctx context.Context, j *domain.ScheduledJob) error
	Update(ctx context.Context, j *domain.ScheduledJob) error
	FindByID(ctx context.Context, id string) (*domain.ScheduledJob, error)
	FindDue(ctx context.Context, before time.Time) ([]*domain.ScheduledJob, error)
}

// StateRepository persists the per-execution accumulated State blob spec.md
// §4.3 step 3 and §4.5 require: every node job re-reads it before running
// and writes back the merged result, independently of ExecutionRepository.Update
// (which writes the execution row's status and token/cost counters).
type StateRepository interface {
	Load(ctx context.Context, executionID string) (*state.State, error)
	Save(ctx context.Context, executionID string, s *state.State) error
}
