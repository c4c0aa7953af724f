package app

import (
	"context"
	"fmt"

	"batteryflow/domain/core"
	"batteryflow/domain/dataset"
	"batteryflow/internal"
	"batteryflow/ports"
)

// Loader reads the battery table and normalizes cycle_index to integers
type Loader struct {
	reader      ports.TableReaderPort
	defaultPath string
	logger      *internal.Logger
}

// NewLoader creates a loader; an empty path passed to Load falls back to defaultPath
func NewLoader(reader ports.TableReaderPort, defaultPath string, logger *internal.Logger) *Loader {
	if logger == nil {
		logger = internal.NewNopLogger()
	}
	return &Loader{
		reader:      reader,
		defaultPath: defaultPath,
		logger:      logger,
	}
}

// Load reads the whole table at path. Every required column must exist and
// cycle_index must hold integer-castable values.
func (l *Loader) Load(ctx context.Context, path string) (*dataset.Frame, error) {
	if path == "" {
		path = l.defaultPath
	}
	if path == "" {
		return nil, core.NewInvalidArgumentError("path", "no input path configured")
	}

	frame, err := l.reader.Read(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	for _, name := range dataset.RequiredColumns {
		if !frame.HasColumn(name) {
			return nil, fmt.Errorf("load %s: %w", path, core.NewMissingColumnError(name))
		}
	}

	cycles, err := frame.Ints(dataset.ColumnCycleIndex)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	normalized := make([]float64, len(cycles))
	for i, c := range cycles {
		normalized[i] = float64(c)
	}
	frame, err = frame.WithColumn(dataset.ColumnCycleIndex, normalized)
	if err != nil {
		return nil, err
	}

	l.logger.Infow("loaded table", "path", path, "rows", frame.NumRows(), "columns", frame.NumCols())
	return frame, nil
}
