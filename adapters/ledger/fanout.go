package ledger

import (
	"context"
	"errors"

	"batteryflow/domain/metrics"
	"batteryflow/ports"
)

// FanOut writes every record to a primary ledger and then to each mirror.
// Reads come from the primary.
type FanOut struct {
	primary ports.MetricsLedger
	mirrors []ports.MetricsLedgerPort
}

// NewFanOut combines a primary ledger with mirrors
func NewFanOut(primary ports.MetricsLedger, mirrors ...ports.MetricsLedgerPort) *FanOut {
	return &FanOut{primary: primary, mirrors: mirrors}
}

// Append stops on a primary failure; mirror failures are joined and returned after all mirrors ran
func (f *FanOut) Append(ctx context.Context, record metrics.Record) error {
	if err := f.primary.Append(ctx, record); err != nil {
		return err
	}
	var errs []error
	for _, m := range f.mirrors {
		if err := m.Append(ctx, record); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// List reads the primary ledger
func (f *FanOut) List(ctx context.Context) ([]metrics.Record, error) {
	return f.primary.List(ctx)
}
