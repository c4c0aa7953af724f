// Package ledger persists model evaluation records.
package ledger

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"batteryflow/domain/core"
	"batteryflow/domain/metrics"

	"golang.org/x/sys/unix"
)

// CSVLedger appends records to a CSV file whose header is written once.
// Writers in this process serialize on a mutex; writers in other processes on an exclusive flock.
type CSVLedger struct {
	path string
	mu   sync.Mutex
}

// NewCSVLedger creates a ledger at path. The file is created on first append.
func NewCSVLedger(path string) *CSVLedger {
	return &CSVLedger{path: path}
}

// Path returns the ledger file location
func (l *CSVLedger) Path() string {
	return l.path
}

// Append writes one row, preceded by the header when the file is empty
func (l *CSVLedger) Append(ctx context.Context, record metrics.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return core.NewResourceError(l.path, err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return core.NewResourceError(l.path, err)
	}
	defer f.Close()

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		return core.NewResourceError(l.path, err)
	}
	defer unix.Flock(int(f.Fd()), unix.LOCK_UN)

	info, err := f.Stat()
	if err != nil {
		return core.NewResourceError(l.path, err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(metrics.LedgerHeader); err != nil {
			return core.NewResourceError(l.path, err)
		}
	}
	if err := w.Write(record.CSVRow()); err != nil {
		return core.NewResourceError(l.path, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return core.NewResourceError(l.path, err)
	}
	return nil
}

// List reads every row back in append order. A missing file is an empty ledger.
func (l *CSVLedger) List(ctx context.Context) ([]metrics.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, core.NewResourceError(l.path, err)
	}
	defer f.Close()

	if err := unix.Flock(int(f.Fd()), unix.LOCK_SH); err != nil {
		return nil, core.NewResourceError(l.path, err)
	}
	defer unix.Flock(int(f.Fd()), unix.LOCK_UN)

	r := csv.NewReader(f)
	var records []metrics.Record
	for line := 0; ; line++ {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, core.NewDataFormatError(l.path, err.Error())
		}
		if line == 0 {
			continue
		}
		rec, err := parseRow(row)
		if err != nil {
			return nil, core.NewDataFormatError(l.path, fmt.Sprintf("line %d: %v", line+1, err))
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseRow(row []string) (metrics.Record, error) {
	if len(row) != len(metrics.LedgerHeader) {
		return metrics.Record{}, fmt.Errorf("expected %d fields, got %d", len(metrics.LedgerHeader), len(row))
	}
	vals := make([]float64, 4)
	for i := range vals {
		v, err := strconv.ParseFloat(row[i+2], 64)
		if err != nil {
			return metrics.Record{}, err
		}
		vals[i] = v
	}
	return metrics.Record{
		Model:      row[0],
		Dataset:    row[1],
		MSE:        vals[0],
		RMSE:       vals[1],
		R2:         vals[2],
		AdjustedR2: vals[3],
	}, nil
}
