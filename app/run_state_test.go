package app

import (
	"testing"

	"batteryflow/domain/core"
	"batteryflow/domain/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunState_Handoff(t *testing.T) {
	s := NewRunState(RunParams{SampleSize: 10})
	_, err := s.Frame(KeySample)
	assert.True(t, core.IsNotFoundError(err))

	f := mustFrame(t, []string{"a"}, [][]float64{{1, 2}})
	s.Put(KeySample, f)
	got, err := s.Frame(KeySample)
	require.NoError(t, err)
	assert.Same(t, f, got)

	s.AddRecords(metrics.Record{Model: "m"})
	s.AddReport(FilterReport{Filter: FilterZScore, RowsIn: 2, RowsOut: 1})
	assert.Len(t, s.Records(), 1)
	assert.Equal(t, 1, s.Reports()[0].Removed())
}
