package storage

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"

	"github.com/flowforge/core/internal/logger"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// MigrationFS exposes the embedded schema migrations for cmd/server and
// cmd/migrate-equivalent tooling.
func MigrationFS() fs.FS {
	return migrationFiles
}

// Migrator wraps bun's migrate.Migrator, grounded on the teacher's
// storage.Migrator.
type Migrator struct {
	migrator *migrate.Migrator
	db       *bun.DB
}

// NewMigrator discovers migrations under root and builds a Migrator bound to db.
func NewMigrator(db *bun.DB, root fs.FS) (*Migrator, error) {
	migrations := migrate.NewMigrations()
	if err := migrations.Discover(root); err != nil {
		return nil, fmt.Errorf("storage: discover migrations: %w", err)
	}
	return &Migrator{
		migrator: migrate.NewMigrator(db, migrations),
		db:       db,
	}, nil
}

// Init creates bun's migration bookkeeping tables.
func (m *Migrator) Init(ctx context.Context) error {
	logger.Default().Info("initializing migration tables")
	return m.migrator.Init(ctx)
}

// Up applies every pending migration.
func (m *Migrator) Up(ctx context.Context) error {
	group, err := m.migrator.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("storage: migrate up: %w", err)
	}
	if group.IsZero() {
		logger.Default().Info("no new migrations to run")
		return nil
	}
	logger.Default().Info("migrations applied", "group_id", group.ID, "migrations", group.Migrations.Applied())
	return nil
}

// Down rolls back the most recently applied migration group.
func (m *Migrator) Down(ctx context.Context) error {
	group, err := m.migrator.Rollback(ctx)
	if err != nil {
		return fmt.Errorf("storage: migrate down: %w", err)
	}
	if group.IsZero() {
		logger.Default().Info("no migrations to roll back")
		return nil
	}
	logger.Default().Info("migrations rolled back", "group_id", group.ID, "migrations", group.Migrations.Unapplied())
	return nil
}

// Status logs applied/pending state for every discovered migration.
func (m *Migrator) Status(ctx context.Context) error {
	ms, err := m.migrator.MigrationsWithStatus(ctx)
	if err != nil {
		return fmt.Errorf("storage: migration status: %w", err)
	}
	for _, mg := range ms {
		status := "pending"
		if mg.GroupID > 0 {
			status = "applied"
		}
		logger.Default().Info("migration", "name", mg.Name, "status", status)
	}
	return nil
}
