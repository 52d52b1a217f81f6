package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/flowforge/core/internal/domain"
	"github.com/flowforge/core/internal/state"
	"github.com/flowforge/core/internal/storage/models"
)

var _ StateRepository = (*BunStateRepository)(nil)

// BunStateRepository implements StateRepository against the state column of
// workflow_executions, keeping the hot per-node state read/write path
// separate from BunExecutionRepository.Update's coarser status-transition
// columns.
type BunStateRepository struct {
	db *bun.DB
}

// NewBunStateRepository returns a Bun-backed StateRepository.
func NewBunStateRepository(db *bun.DB) *BunStateRepository {
	return &BunStateRepository{db: db}
}

// Load returns the execution's accumulated State, or a fresh empty State if
// none has been saved yet.
func (r *BunStateRepository) Load(ctx context.Context, executionID string) (*state.State, error) {
	m := &models.ExecutionModel{}
	err := r.db.NewSelect().
		Model(m).
		Column("execution_id", "state").
		Where("execution_id = ?", executionID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrExecutionNotFound
		}
		return nil, fmt.Errorf("storage: load state: %w", err)
	}
	if len(m.State) == 0 {
		return state.New(executionID), nil
	}
	s, err := state.Deserialise(m.State)
	if err != nil {
		return nil, fmt.Errorf("storage: deserialise state: %w", err)
	}
	return s, nil
}

// Save serialises s and writes it to the execution's state column.
func (r *BunStateRepository) Save(ctx context.Context, executionID string, s *state.State) error {
	data, err := state.Serialise(s)
	if err != nil {
		return fmt.Errorf("storage: serialise state: %w", err)
	}
	m := &models.ExecutionModel{ExecutionID: executionID, State: data}
	_, err = r.db.NewUpdate().
		Model(m).
		Column("state").
		Where("execution_id = ?", executionID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("storage: save state: %w", err)
	}
	return nil
}
