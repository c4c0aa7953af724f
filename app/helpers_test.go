package app

import (
	"path/filepath"
	"testing"

	"batteryflow/adapters/ml"
	"batteryflow/domain/dataset"
	"batteryflow/internal/testkit"
	"batteryflow/ports"

	"github.com/stretchr/testify/require"
)

func testModels() []ModelSpec {
	return []ModelSpec{
		{Name: ModelRandomForest, New: func() ports.Regressor { return ml.NewRandomForest(ml.WithNEstimators(10)) }},
		{Name: ModelLinearRegression, New: func() ports.Regressor { return ml.NewLinearRegression() }},
		{Name: ModelGradientBoosting, New: func() ports.Regressor { return ml.NewGradientBoosting(ml.WithRounds(10)) }},
		{Name: ModelDecisionTree, New: func() ports.Regressor { return ml.NewDecisionTree() }},
	}
}

func batteryFrame(t *testing.T, cfg testkit.BatteryGeneratorConfig) *dataset.Frame {
	t.Helper()
	frame, err := testkit.NewBatteryDataGenerator(cfg).Frame()
	require.NoError(t, err)
	return frame
}

func batteryCSV(t *testing.T, cfg testkit.BatteryGeneratorConfig) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "case_study.csv")
	require.NoError(t, testkit.NewBatteryDataGenerator(cfg).WriteCSV(path))
	return path
}

func mustFrame(t *testing.T, columns []string, values [][]float64) *dataset.Frame {
	t.Helper()
	frame, err := dataset.NewFrame(columns, values)
	require.NoError(t, err)
	return frame
}
