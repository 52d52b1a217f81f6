package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/flowforge/core/internal/domain"
	"github.com/flowforge/core/internal/storage/models"
)

var _ ExecutionRepository = (*BunExecutionRepository)(nil)

// BunExecutionRepository implements ExecutionRepository using Bun ORM.
// Grounded on the teacher's storage.ExecutionRepository.
type BunExecutionRepository struct {
	db *bun.DB
}

// NewBunExecutionRepository returns a Bun-backed ExecutionRepository.
func NewBunExecutionRepository(db *bun.DB) *BunExecutionRepository {
	return &BunExecutionRepository{db: db}
}

// Create inserts a new execution row.
func (r *BunExecutionRepository) Create(ctx context.Context, e *domain.Execution) error {
	if e.ExecutionID == "" {
		e.ExecutionID = uuid.NewString()
	}
	m := models.ExecutionFromDomain(e)
	if _, err := r.db.NewInsert().Model(m).Exec(ctx); err != nil {
		return fmt.Errorf("storage: create execution: %w", err)
	}
	return nil
}

// Update persists every mutable field on an execution row: status, output,
// error, retry/cost counters, and timestamps. The orchestrator calls this
// after every node attempt, so it intentionally updates the whole row
// rather than tracking a dirty-field set.
func (r *BunExecutionRepository) Update(ctx context.Context, e *domain.Execution) error {
	m := models.ExecutionFromDomain(e)
	_, err := r.db.NewUpdate().
		Model(m).
		Column("status", "trigger_payload", "final_output", "retry_count",
			"max_retries", "error_message", "total_input_tokens",
			"total_output_tokens", "total_cost_usd", "llm_calls",
			"started_at", "completed_at").
		Where("execution_id = ?", e.ExecutionID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("storage: update execution: %w", err)
	}
	return nil
}

// FindByID loads one execution row by its UUID.
func (r *BunExecutionRepository) FindByID(ctx context.Context, id string) (*domain.Execution, error) {
	m := &models.ExecutionModel{}
	err := r.db.NewSelect().Model(m).Where("execution_id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrExecutionNotFound
		}
		return nil, fmt.Errorf("storage: find execution: %w", err)
	}
	return models.ExecutionToDomain(m), nil
}

// FindChildren returns every execution whose parent_execution_id is
// parentExecutionID, in creation order — the order spawn_and_await's
// submission-order aggregation relies on as a fallback when the caller
// does not already hold the child UUID list.
func (r *BunExecutionRepository) FindChildren(ctx context.Context, parentExecutionID string) ([]*domain.Execution, error) {
	var rows []*models.ExecutionModel
	err := r.db.NewSelect().
		Model(&rows).
		Where("parent_execution_id = ?", parentExecutionID).
		OrderExpr("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage: find children: %w", err)
	}
	out := make([]*domain.Execution, len(rows))
	for i, m := range rows {
		out[i] = models.ExecutionToDomain(m)
	}
	return out, nil
}

// FindStaleRunning returns executions in status=running whose most recent
// execution_logs row (if any) predates olderThan, feeding the zombie
// sweeper (spec.md §4.3).
func (r *BunExecutionRepository) FindStaleRunning(ctx context.Context, olderThan time.Time) ([]*domain.Execution, error) {
	var rows []*models.ExecutionModel
	err := r.db.NewSelect().
		Model(&rows).
		Where("status = 'running'").
		Where("started_at IS NOT NULL AND started_at < ?", olderThan).
		Where("execution_id NOT IN (SELECT execution_id FROM execution_logs WHERE timestamp >= ?)", olderThan).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage: find stale running: %w", err)
	}
	out := make([]*domain.Execution, len(rows))
	for i, m := range rows {
		out[i] = models.ExecutionToDomain(m)
	}
	return out, nil
}

var _ ExecutionLogRepository = (*BunExecutionLogRepository)(nil)

// BunExecutionLogRepository implements ExecutionLogRepository.
type BunExecutionLogRepository struct {
	db *bun.DB
}

// NewBunExecutionLogRepository returns a Bun-backed ExecutionLogRepository.
func NewBunExecutionLogRepository(db *bun.DB) *BunExecutionLogRepository {
	return &BunExecutionLogRepository{db: db}
}

// Create inserts one execution_logs row; every node attempt gets its own
// row rather than overwriting a prior attempt's row (spec.md §3).
func (r *BunExecutionLogRepository) Create(ctx context.Context, l *domain.ExecutionLog) error {
	m := models.ExecutionLogFromDomain(l)
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	if _, err := r.db.NewInsert().Model(m).Exec(ctx); err != nil {
		return fmt.Errorf("storage: create execution log: %w", err)
	}
	l.Timestamp = m.Timestamp
	return nil
}

// FindByExecution returns every log row for an execution in attempt order.
func (r *BunExecutionLogRepository) FindByExecution(ctx context.Context, executionID string) ([]*domain.ExecutionLog, error) {
	var rows []*models.ExecutionLogModel
	err := r.db.NewSelect().
		Model(&rows).
		Where("execution_id = ?", executionID).
		OrderExpr("timestamp ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage: find execution logs: %w", err)
	}
	out := make([]*domain.ExecutionLog, len(rows))
	for i, m := range rows {
		out[i] = models.ExecutionLogToDomain(m)
	}
	return out, nil
}

// FindLatestByNode returns the most recent log row for one node_id, which
// defines that node's effective terminal status (spec.md §3 Lifecycle).
func (r *BunExecutionLogRepository) FindLatestByNode(ctx context.Context, executionID, nodeID string) (*domain.ExecutionLog, error) {
	m := &models.ExecutionLogModel{}
	err := r.db.NewSelect().
		Model(m).
		Where("execution_id = ? AND node_id = ?", executionID, nodeID).
		OrderExpr("timestamp DESC, id DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("storage: find latest log: %w", err)
	}
	return models.ExecutionLogToDomain(m), nil
}

// LastLogTimestamp returns the most recent log timestamp across the whole
// execution, used by the zombie sweeper to measure inactivity.
func (r *BunExecutionLogRepository) LastLogTimestamp(ctx context.Context, executionID string) (time.Time, error) {
	var ts time.Time
	err := r.db.NewSelect().
		ColumnExpr("MAX(timestamp)").
		Model((*models.ExecutionLogModel)(nil)).
		Where("execution_id = ?", executionID).
		Scan(ctx, &ts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("storage: last log timestamp: %w", err)
	}
	return ts, nil
}
