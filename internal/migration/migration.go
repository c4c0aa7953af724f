package migration

import (
	"context"
	"fmt"

	"batteryflow/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner handles database schema migrations
type MigrationRunner struct {
	version string
}

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "1.0.0",
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Run executes all database migrations in the correct order
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	if err := r.createMetricsLedgerTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create metrics_ledger table")
	}

	if err := r.createIndexes(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create indexes")
	}

	return nil
}

func (r *MigrationRunner) createMetricsLedgerTable(ctx context.Context, db *sqlx.DB) error {
	id := "BIGSERIAL PRIMARY KEY"
	switch db.DriverName() {
	case "postgres":
	case "sqlite", "sqlite3":
		id = "INTEGER PRIMARY KEY AUTOINCREMENT"
	default:
		return errors.InvalidInput(fmt.Sprintf("unsupported ledger driver %q", db.DriverName()))
	}

	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS metrics_ledger (
			id `+id+`,
			model VARCHAR(100) NOT NULL,
			dataset VARCHAR(100) NOT NULL,
			mse DOUBLE PRECISION NOT NULL,
			rmse DOUBLE PRECISION NOT NULL,
			r2 DOUBLE PRECISION NOT NULL,
			adjusted_r2 DOUBLE PRECISION NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

func (r *MigrationRunner) createIndexes(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS idx_metrics_ledger_model_dataset
		ON metrics_ledger (model, dataset)
	`)
	return err
}
