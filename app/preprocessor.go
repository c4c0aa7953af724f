package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"batteryflow/domain/dataset"
	"batteryflow/domain/stats"
	"batteryflow/internal"
	"batteryflow/ports"
)

// Preprocessing run and artifact names
const (
	PreprocessingRunName   = "Data Preprocessing"
	PlotVoltageTrendFull   = "voltage_trend_full.png"
	PlotVoltageDownsampled = "voltage_trend_downsampled.png"
	PlotCorrelationMatrix  = "correlation_matrix.png"

	downsamplePoints = 5000
)

// Preprocessor records null diagnostics and diagnostic plots to one tracked run
type Preprocessor struct {
	tracker   ports.Tracker
	renderer  ports.PlotRendererPort
	outputDir string
	logger    *internal.Logger
}

// NewPreprocessor creates a preprocessor writing plots under outputDir
func NewPreprocessor(tracker ports.Tracker, renderer ports.PlotRendererPort, outputDir string, logger *internal.Logger) *Preprocessor {
	if logger == nil {
		logger = internal.NewNopLogger()
	}
	return &Preprocessor{
		tracker:   tracker,
		renderer:  renderer,
		outputDir: outputDir,
		logger:    logger,
	}
}

// Run logs the null counts of full and sample, then renders and logs the voltage
// trend of full, its downsampled scatter and the correlation heatmap of sample.
// The tracked run is ended on every path.
func (p *Preprocessor) Run(ctx context.Context, full, sample *dataset.Frame) (err error) {
	if err := os.MkdirAll(p.outputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tracked, err := p.tracker.StartRun(ctx, PreprocessingRunName)
	if err != nil {
		return fmt.Errorf("start %q: %w", PreprocessingRunName, err)
	}
	defer func() {
		if endErr := endRun(ctx, tracked, err); err == nil {
			err = endErr
		}
	}()

	if err := tracked.LogParam(ctx, "nulls_in_full_data", strconv.Itoa(full.NullCount())); err != nil {
		return err
	}
	if err := tracked.LogParam(ctx, "nulls_in_stratified_sample", strconv.Itoa(sample.NullCount())); err != nil {
		return err
	}

	steps := []struct {
		name   string
		render func(path string) error
	}{
		{PlotVoltageTrendFull, func(path string) error { return p.voltageTrend(path, full) }},
		{PlotVoltageDownsampled, func(path string) error { return p.downsampledTrend(path, full) }},
		{PlotCorrelationMatrix, func(path string) error { return p.correlationHeatmap(path, sample) }},
	}
	for _, step := range steps {
		path := filepath.Join(p.outputDir, step.name)
		if err := step.render(path); err != nil {
			return fmt.Errorf("render %s: %w", step.name, err)
		}
		if err := tracked.LogArtifact(ctx, path); err != nil {
			return fmt.Errorf("log artifact %s: %w", step.name, err)
		}
		p.logger.Debug("logged plot %s", path)
	}

	if err := tracked.LogParam(ctx, "timestamp_ignored", FormatParam(true)); err != nil {
		return err
	}
	p.logger.Infow("preprocessing diagnostics recorded",
		"nulls_full", full.NullCount(),
		"nulls_sample", sample.NullCount(),
		"run_id", tracked.ID())
	return nil
}

func (p *Preprocessor) voltageTrend(path string, frame *dataset.Frame) error {
	x, y, err := timeVoltage(frame)
	if err != nil {
		return err
	}
	return p.renderer.LinePlot(path, ports.ChartSpec{
		Title:  "Voltage Trend Over Time",
		XLabel: "Test Time",
		YLabel: "Voltage",
		Width:  10,
		Height: 5,
	}, ports.Series{Label: "Voltage", X: x, Y: y})
}

func (p *Preprocessor) downsampledTrend(path string, frame *dataset.Frame) error {
	if frame.NumRows() == 0 {
		return fmt.Errorf("no rows to downsample")
	}
	down, err := frame.Take(linspaceIndices(frame.NumRows(), downsamplePoints))
	if err != nil {
		return err
	}
	x, y, err := timeVoltage(down)
	if err != nil {
		return err
	}
	return p.renderer.ScatterPlot(path, ports.ChartSpec{
		Title:  "Downsampled Voltage Trend Over Time",
		XLabel: "Test Time",
		YLabel: "Voltage",
		Width:  10,
		Height: 5,
	}, ports.Series{Label: "Voltage", X: x, Y: y})
}

func (p *Preprocessor) correlationHeatmap(path string, frame *dataset.Frame) error {
	analysis, err := frame.Drop(dataset.IdentifierColumns...)
	if err != nil {
		return err
	}
	names := analysis.Columns()
	columns := make([][]float64, len(names))
	for i, name := range names {
		if columns[i], err = analysis.Column(name); err != nil {
			return err
		}
	}
	return p.renderer.Heatmap(path, ports.HeatmapSpec{
		Title:  "Correlation Matrix",
		Labels: names,
		Values: stats.PearsonMatrix(columns),
		Width:  8,
		Height: 6,
	})
}

func timeVoltage(frame *dataset.Frame) (x, y []float64, err error) {
	if x, err = frame.Column(dataset.ColumnTestTime); err != nil {
		return nil, nil, err
	}
	if y, err = frame.Column(dataset.ColumnVoltage); err != nil {
		return nil, nil, err
	}
	return x, y, nil
}

// linspaceIndices returns k evenly spaced positions over [0, n-1], truncated to integers.
// Positions repeat when n < k.
func linspaceIndices(n, k int) []int {
	out := make([]int, k)
	if k == 1 {
		return out
	}
	step := float64(n-1) / float64(k-1)
	for i := range out {
		out[i] = int(float64(i) * step)
	}
	out[k-1] = n - 1
	return out
}
