package ledger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"batteryflow/domain/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(model string) metrics.Record {
	return metrics.Record{Model: model, Dataset: metrics.LabelRaw, MSE: 0.25, RMSE: 0.5, R2: 0.9, AdjustedR2: 0.89}
}

func TestCSVLedger_HeaderOnceAndNoDedup(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "out", "combined_metrics.csv")
	l := NewCSVLedger(path)

	require.NoError(t, l.Append(ctx, record("Random Forest")))
	require.NoError(t, l.Append(ctx, record("Random Forest")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Model,Dataset,MSE,RMSE,R2,Adjusted_R2", lines[0])
	assert.Equal(t, "Random Forest,Raw Data,0.25,0.5,0.9,0.89", lines[1])
	assert.Equal(t, lines[1], lines[2])

	records, err := l.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []metrics.Record{record("Random Forest"), record("Random Forest")}, records)
}

func TestCSVLedger_ConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "combined_metrics.csv")
	a, b := NewCSVLedger(path), NewCSVLedger(path)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l := a
			if i%2 == 1 {
				l = b
			}
			assert.NoError(t, l.Append(ctx, record("Decision Tree")))
		}(i)
	}
	wg.Wait()

	records, err := a.List(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 20)
}

func TestCSVLedger_MissingFileIsEmpty(t *testing.T) {
	records, err := NewCSVLedger(filepath.Join(t.TempDir(), "none.csv")).List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

type failingLedger struct{}

func (failingLedger) Append(context.Context, metrics.Record) error { return errors.New("mirror down") }

func TestFanOut(t *testing.T) {
	ctx := context.Background()
	primary := NewCSVLedger(filepath.Join(t.TempDir(), "primary.csv"))
	mirror := NewCSVLedger(filepath.Join(t.TempDir(), "mirror.csv"))

	f := NewFanOut(primary, mirror)
	require.NoError(t, f.Append(ctx, record("Linear Regression")))

	got, err := mirror.List(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	f = NewFanOut(primary, failingLedger{}, mirror)
	err = f.Append(ctx, record("Linear Regression"))
	assert.EqualError(t, err, "mirror down")

	got, err = f.List(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 2, "primary is written before mirrors")
	got, err = mirror.List(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 2, "remaining mirrors still run")
}
