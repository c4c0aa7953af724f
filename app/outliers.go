package app

import (
	"context"
	"fmt"

	"batteryflow/domain/core"
	"batteryflow/domain/dataset"
	"batteryflow/domain/stats"
	"batteryflow/internal"
	"batteryflow/internal/metrics"
	"batteryflow/ports"
)

// Filter names as reported in metrics and logs
const (
	FilterZScore    = "zscore"
	FilterIsolation = "isolation_forest"
)

// DefaultZThreshold is the |z| above which a row is dropped
const DefaultZThreshold = 3.0

// FilterReport summarizes one outlier filter pass
type FilterReport struct {
	Filter     string   `json:"filter"`
	RowsIn     int      `json:"rows_in"`
	RowsOut    int      `json:"rows_out"`
	Degenerate []string `json:"degenerate,omitempty"` // features whose scores were undefined
}

// Removed returns the number of dropped rows
func (r FilterReport) Removed() int { return r.RowsIn - r.RowsOut }

// ZScoreFilter drops rows with any feature more than threshold population
// standard deviations from its column mean
type ZScoreFilter struct {
	threshold float64
	metrics   *metrics.Pipeline
	logger    *internal.Logger
}

// NewZScoreFilter creates a filter; threshold <= 0 means DefaultZThreshold
func NewZScoreFilter(threshold float64, m *metrics.Pipeline, logger *internal.Logger) *ZScoreFilter {
	if threshold <= 0 {
		threshold = DefaultZThreshold
	}
	if logger == nil {
		logger = internal.NewNopLogger()
	}
	return &ZScoreFilter{threshold: threshold, metrics: m, logger: logger}
}

// Filter keeps rows in order. A feature with zero variance or a null value scores
// NaN and never flags a row; such features are listed in the report.
func (f *ZScoreFilter) Filter(frame *dataset.Frame, features dataset.FeatureSet) (*dataset.Frame, FilterReport, error) {
	report := FilterReport{Filter: FilterZScore, RowsIn: frame.NumRows()}
	columns, err := featureColumns(frame, features)
	if err != nil {
		return nil, report, err
	}

	outlier, degenerate, err := stats.OutlierMask(columns, f.threshold)
	if err != nil {
		return nil, report, fmt.Errorf("z-score filter: %w", err)
	}
	for _, j := range degenerate {
		report.Degenerate = append(report.Degenerate, features[j])
	}
	if len(report.Degenerate) > 0 {
		f.logger.Warnw("z-scores undefined, feature cannot flag rows", "features", report.Degenerate)
	}

	keep := make([]bool, len(outlier))
	for i, o := range outlier {
		keep[i] = !o
	}
	out, err := frame.Filter(keep)
	if err != nil {
		return nil, report, err
	}
	report.RowsOut = out.NumRows()
	f.metrics.FilterRows(FilterZScore, report.RowsIn, report.RowsOut)
	f.logger.Infow("z-score filter applied", "rows_in", report.RowsIn, "rows_out", report.RowsOut, "threshold", f.threshold)
	return out, report, nil
}

// IsolationFilter drops rows an isolation forest labels anomalous
type IsolationFilter struct {
	newDetector func() ports.OutlierDetector
	metrics     *metrics.Pipeline
	logger      *internal.Logger
}

// NewIsolationFilter creates a filter that builds a fresh detector for every pass
func NewIsolationFilter(newDetector func() ports.OutlierDetector, m *metrics.Pipeline, logger *internal.Logger) *IsolationFilter {
	if logger == nil {
		logger = internal.NewNopLogger()
	}
	return &IsolationFilter{newDetector: newDetector, metrics: m, logger: logger}
}

// Filter fits the detector on the feature columns and labels the same rows in one pass.
// The output holds the inliers only, with an anomaly column set to 1.
func (f *IsolationFilter) Filter(ctx context.Context, frame *dataset.Frame, features dataset.FeatureSet) (*dataset.Frame, FilterReport, error) {
	report := FilterReport{Filter: FilterIsolation, RowsIn: frame.NumRows()}
	if err := ctx.Err(); err != nil {
		return nil, report, err
	}
	if err := features.Validate(frame); err != nil {
		return nil, report, err
	}
	X, err := frame.Matrix(features.Names())
	if err != nil {
		return nil, report, err
	}

	labels, _, err := f.newDetector().FitPredict(X)
	if err != nil {
		return nil, report, fmt.Errorf("isolation forest: %w", err)
	}
	if len(labels) != frame.NumRows() {
		return nil, report, core.NewInvalidArgumentError("labels", fmt.Sprintf("%d labels for %d rows", len(labels), frame.NumRows()))
	}

	anomaly := make([]float64, len(labels))
	keep := make([]bool, len(labels))
	for i, l := range labels {
		anomaly[i] = float64(l)
		keep[i] = l == 1
	}
	labelled, err := frame.WithColumn(dataset.ColumnAnomaly, anomaly)
	if err != nil {
		return nil, report, err
	}
	out, err := labelled.Filter(keep)
	if err != nil {
		return nil, report, err
	}
	report.RowsOut = out.NumRows()
	f.metrics.FilterRows(FilterIsolation, report.RowsIn, report.RowsOut)
	f.logger.Infow("isolation forest filter applied", "rows_in", report.RowsIn, "rows_out", report.RowsOut)
	return out, report, nil
}

func featureColumns(frame *dataset.Frame, features dataset.FeatureSet) ([][]float64, error) {
	if len(features) == 0 {
		return nil, core.NewInvalidArgumentError("features", "empty feature set")
	}
	columns := make([][]float64, len(features))
	for j, name := range features {
		col, err := frame.Column(name)
		if err != nil {
			return nil, err
		}
		columns[j] = col
	}
	return columns, nil
}
