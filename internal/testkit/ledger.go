package testkit

import (
	"context"
	"sync"

	"batteryflow/domain/metrics"
)

// InMemoryLedger implements ports.MetricsLedger in memory
type InMemoryLedger struct {
	mu      sync.Mutex
	records []metrics.Record
}

// NewInMemoryLedger creates an empty ledger
func NewInMemoryLedger() *InMemoryLedger {
	return &InMemoryLedger{}
}

// Append stores a record
func (l *InMemoryLedger) Append(ctx context.Context, record metrics.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, record)
	return nil
}

// List returns the stored records in append order
func (l *InMemoryLedger) List(ctx context.Context) ([]metrics.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]metrics.Record(nil), l.records...), nil
}
