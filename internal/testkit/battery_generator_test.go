package testkit

import (
	"path/filepath"
	"testing"

	"batteryflow/domain/dataset"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatteryDataGenerator_Frame(t *testing.T) {
	frame, err := NewBatteryDataGenerator(DefaultBatteryConfig()).Frame()
	require.NoError(t, err)
	assert.Equal(t, 1000, frame.NumRows())

	cycles, err := frame.Ints(dataset.ColumnCycleIndex)
	require.NoError(t, err)
	counts := map[int]int{}
	for _, c := range cycles {
		counts[c]++
	}
	assert.Equal(t, map[int]int{1: 500, 2: 500}, counts)
	assert.NoError(t, dataset.BatteryFeatures.Validate(frame))
}

func TestBatteryDataGenerator_Deterministic(t *testing.T) {
	a := NewBatteryDataGenerator(DefaultBatteryConfig()).Values()
	b := NewBatteryDataGenerator(DefaultBatteryConfig()).Values()
	assert.Equal(t, a, b)
}

func TestBatteryDataGenerator_WriteCSV(t *testing.T) {
	cfg := DefaultBatteryConfig()
	cfg.Rows = 10
	cfg.NullRate = 1
	path := filepath.Join(t.TempDir(), "data", "case_study.csv")
	require.NoError(t, NewBatteryDataGenerator(cfg).WriteCSV(path))
	assert.FileExists(t, path)
}
