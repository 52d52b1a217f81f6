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

var _ ScheduledJobRepository = (*BunScheduledJobRepository)(nil)

// BunScheduledJobRepository implements ScheduledJobRepository using Bun ORM.
type BunScheduledJobRepository struct {
	db *bun.DB
}

// NewBunScheduledJobRepository returns a Bun-backed ScheduledJobRepository.
func NewBunScheduledJobRepository(db *bun.DB) *BunScheduledJobRepository {
	return &BunScheduledJobRepository{db: db}
}

// Create inserts a new scheduled_jobs row.
func (r *BunScheduledJobRepository) Create(ctx context.Context, j *domain.ScheduledJob) error {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	m := models.ScheduledJobFromDomain(j)
	if _, err := r.db.NewInsert().Model(m).Exec(ctx); err != nil {
		return fmt.Errorf("storage: create scheduled job: %w", err)
	}
	return nil
}

// Update persists the full mutable row: status and run/retry counters.
func (r *BunScheduledJobRepository) Update(ctx context.Context, j *domain.ScheduledJob) error {
	m := models.ScheduledJobFromDomain(j)
	_, err := r.db.NewUpdate().
		Model(m).
		Column("status", "current_repeat", "current_retry", "next_run_at",
			"last_run_at", "run_count", "error_count", "last_error").
		Where("id = ?", j.ID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("storage: update scheduled job: %w", err)
	}
	return nil
}

// FindByID loads one scheduled job by id.
func (r *BunScheduledJobRepository) FindByID(ctx context.Context, id string) (*domain.ScheduledJob, error) {
	m := &models.ScheduledJobModel{}
	err := r.db.NewSelect().Model(m).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrScheduledJobNotFound
		}
		return nil, fmt.Errorf("storage: find scheduled job: %w", err)
	}
	return models.ScheduledJobToDomain(m), nil
}

// FindDue returns active jobs whose next_run_at has passed, used by the
// scheduler on every poll tick (so a job missed while the process was down
// still fires once it is found here).
func (r *BunScheduledJobRepository) FindDue(ctx context.Context, before time.Time) ([]*domain.ScheduledJob, error) {
	var rows []*models.ScheduledJobModel
	err := r.db.NewSelect().
		Model(&rows).
		Where("status = 'active'").
		Where("next_run_at IS NOT NULL AND next_run_at <= ?", before).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage: find due scheduled jobs: %w", err)
	}
	out := make([]*domain.ScheduledJob, len(rows))
	for i, m := range rows {
		out[i] = models.ScheduledJobToDomain(m)
	}
	return out, nil
}
