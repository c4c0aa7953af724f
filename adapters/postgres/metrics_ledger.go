package postgres

import (
	"context"

	"batteryflow/domain/core"
	"batteryflow/domain/metrics"
	"batteryflow/internal/migration"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// MetricsLedger mirrors the metrics ledger into a SQL table
type MetricsLedger struct {
	db *sqlx.DB
}

// Open connects to driver ("postgres" or "sqlite") at url and applies migrations
func Open(ctx context.Context, driver, url string) (*sqlx.DB, error) {
	if driver == "sqlite" {
		sqlx.BindDriver("sqlite", sqlx.QUESTION)
	}
	db, err := sqlx.ConnectContext(ctx, driver, url)
	if err != nil {
		return nil, core.NewResourceError("ledger database", err)
	}
	if err := migration.NewRunner().Run(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// NewMetricsLedger creates a SQL ledger on an open, migrated database
func NewMetricsLedger(db *sqlx.DB) *MetricsLedger {
	return &MetricsLedger{db: db}
}

// Append inserts one record
func (l *MetricsLedger) Append(ctx context.Context, record metrics.Record) error {
	_, err := l.db.NamedExecContext(ctx, `
		INSERT INTO metrics_ledger (model, dataset, mse, rmse, r2, adjusted_r2)
		VALUES (:model, :dataset, :mse, :rmse, :r2, :adjusted_r2)
	`, record)
	if err != nil {
		return core.NewResourceError("metrics_ledger", err)
	}
	return nil
}

// List returns every record in insertion order
func (l *MetricsLedger) List(ctx context.Context) ([]metrics.Record, error) {
	var records []metrics.Record
	err := l.db.SelectContext(ctx, &records, `
		SELECT model, dataset, mse, rmse, r2, adjusted_r2
		FROM metrics_ledger
		ORDER BY id
	`)
	if err != nil {
		return nil, core.NewResourceError("metrics_ledger", err)
	}
	return records, nil
}

// Count returns the number of stored records for a dataset label
func (l *MetricsLedger) Count(ctx context.Context, dataset string) (int, error) {
	var n int
	err := l.db.GetContext(ctx, &n, l.db.Rebind(`SELECT COUNT(*) FROM metrics_ledger WHERE dataset = ?`), dataset)
	if err != nil {
		return 0, core.NewResourceError("metrics_ledger", err)
	}
	return n, nil
}
