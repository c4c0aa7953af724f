package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"batteryflow/adapters/plot"
	"batteryflow/internal/testkit"
	"batteryflow/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreprocessor_Run(t *testing.T) {
	cfg := testkit.DefaultBatteryConfig()
	cfg.NullRate = 0.05
	full := batteryFrame(t, cfg)
	sample, err := full.Take([]int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11})
	require.NoError(t, err)

	dir := t.TempDir()
	tracker := testkit.NewRecordingTracker()
	p := NewPreprocessor(tracker, plot.NewRenderer(), dir, nil)
	require.NoError(t, p.Run(context.Background(), full, sample))

	run, ok := tracker.RunNamed(PreprocessingRunName)
	require.True(t, ok)
	assert.Equal(t, ports.RunStatusFinished, run.Status)
	assert.Equal(t, "True", run.Params["timestamp_ignored"])
	assert.NotEqual(t, "0", run.Params["nulls_in_full_data"])
	assert.Contains(t, run.Params, "nulls_in_stratified_sample")
	assert.Equal(t, []string{PlotVoltageTrendFull, PlotVoltageDownsampled, PlotCorrelationMatrix}, run.Artifacts)

	for _, name := range run.Artifacts {
		assert.FileExists(t, filepath.Join(dir, name))
	}
}

func TestPreprocessor_ArtifactFailureEndsRunFailed(t *testing.T) {
	full := batteryFrame(t, testkit.DefaultBatteryConfig())
	tracker := testkit.NewRecordingTracker()
	tracker.FailArtifact = PlotVoltageDownsampled

	err := NewPreprocessor(tracker, plot.NewRenderer(), t.TempDir(), nil).Run(context.Background(), full, full)
	require.Error(t, err)

	run, ok := tracker.RunNamed(PreprocessingRunName)
	require.True(t, ok)
	assert.True(t, run.Ended)
	assert.Equal(t, ports.RunStatusFailed, run.Status)
	assert.Equal(t, []string{PlotVoltageTrendFull}, run.Artifacts)
	assert.NotContains(t, run.Params, "timestamp_ignored")
}

type failingRenderer struct {
	ports.PlotRendererPort
}

func (failingRenderer) Heatmap(path string, spec ports.HeatmapSpec) error {
	return errors.New("no fonts")
}

func TestPreprocessor_RenderFailureLeavesNoArtifact(t *testing.T) {
	full := batteryFrame(t, testkit.DefaultBatteryConfig())
	dir := t.TempDir()
	tracker := testkit.NewRecordingTracker()
	renderer := failingRenderer{PlotRendererPort: plot.NewRenderer()}

	err := NewPreprocessor(tracker, renderer, dir, nil).Run(context.Background(), full, full)
	require.Error(t, err)
	assert.Contains(t, err.Error(), PlotCorrelationMatrix)

	run, _ := tracker.RunNamed(PreprocessingRunName)
	assert.Equal(t, ports.RunStatusFailed, run.Status)
	assert.NotContains(t, run.Artifacts, PlotCorrelationMatrix)
	_, statErr := os.Stat(filepath.Join(dir, PlotCorrelationMatrix))
	assert.True(t, os.IsNotExist(statErr))
}

func TestLinspaceIndices(t *testing.T) {
	assert.Equal(t, []int{0, 2, 4, 6, 9}, linspaceIndices(10, 5))
	assert.Equal(t, []int{0, 0, 1, 1, 2}, linspaceIndices(3, 5))
	assert.Len(t, linspaceIndices(100000, downsamplePoints), downsamplePoints)
}
