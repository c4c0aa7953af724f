package migration

import (
	"context"
	"path/filepath"
	"testing"

	"batteryflow/internal/errors"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openSQLite(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := sqlx.Open("sqlite", filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRun_CreatesLedgerTable(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)

	runner := NewRunner()
	require.NoError(t, runner.Run(ctx, db))
	require.NoError(t, runner.Run(ctx, db))
	assert.Equal(t, "1.0.0", runner.Version())

	_, err := db.ExecContext(ctx,
		`INSERT INTO metrics_ledger (model, dataset, mse, rmse, r2, adjusted_r2) VALUES (?, ?, ?, ?, ?, ?)`,
		"Decision Tree", "Raw Data", 0.1, 0.3, 0.9, 0.89)
	require.NoError(t, err)

	var n int
	require.NoError(t, db.GetContext(ctx, &n, `SELECT COUNT(*) FROM metrics_ledger`))
	assert.Equal(t, 1, n)
}

func TestRun_UnsupportedDriver(t *testing.T) {
	db := openSQLite(t)
	other := sqlx.NewDb(db.DB, "mysql")

	err := NewRunner().Run(context.Background(), other)
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
}
