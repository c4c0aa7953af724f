package ports

import (
	"context"

	"batteryflow/domain/dataset"
)

// TableReaderPort reads a whole tabular file into a frame
type TableReaderPort interface {
	Read(ctx context.Context, path string) (*dataset.Frame, error)
}
