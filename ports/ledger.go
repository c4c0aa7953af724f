package ports

import (
	"context"

	"batteryflow/domain/metrics"
)

// MetricsLedgerPort appends metrics records. Appends are never deduplicated.
type MetricsLedgerPort interface {
	Append(ctx context.Context, record metrics.Record) error
}

// MetricsLedgerReaderPort reads back what was appended
type MetricsLedgerReaderPort interface {
	List(ctx context.Context) ([]metrics.Record, error)
}

// MetricsLedger combines read and write access
type MetricsLedger interface {
	MetricsLedgerPort
	MetricsLedgerReaderPort
}
