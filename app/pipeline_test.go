package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"batteryflow/adapters/excel"
	"batteryflow/adapters/ledger"
	"batteryflow/adapters/ml"
	"batteryflow/adapters/plot"
	"batteryflow/adapters/rng"
	"batteryflow/domain/core"
	"batteryflow/domain/dataset"
	"batteryflow/domain/metrics"
	"batteryflow/domain/run"
	"batteryflow/domain/stage"
	pipelinemetrics "batteryflow/internal/metrics"
	"batteryflow/internal/testkit"
	"batteryflow/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pipelineFixture struct {
	service *RunService
	tracker *testkit.RecordingTracker
	ledger  *ledger.CSVLedger
	outDir  string
	input   string
}

func newPipelineFixture(t *testing.T, cfg testkit.BatteryGeneratorConfig) *pipelineFixture {
	t.Helper()
	outDir := t.TempDir()
	tracker := testkit.NewRecordingTracker()
	csvLedger := ledger.NewCSVLedger(filepath.Join(outDir, "combined_metrics.csv"))
	m := pipelinemetrics.NewPipeline(nil)
	source := rng.New()

	p := &BatteryPipeline{
		Loader:       NewLoader(excel.NewDataReader(nil, dataset.RequiredColumns...), "", nil),
		Sampler:      NewSampler(source, 42, nil),
		Preprocessor: NewPreprocessor(tracker, plot.NewRenderer(), outDir, nil),
		ZScore:       NewZScoreFilter(DefaultZThreshold, m, nil),
		Isolation:    NewIsolationFilter(func() ports.OutlierDetector { return ml.NewIsolationForest() }, m, nil),
		Trainer:      NewTrainer(testModels(), tracker, csvLedger, source, m, nil),
	}
	o, err := NewOrchestrator(stage.BatteryPipelinePlan(), p.Tasks(), WithRetries(0, 0), WithMetrics(m))
	require.NoError(t, err)

	input := batteryCSV(t, cfg)
	service := NewRunService(o, NewReportWriter(filepath.Join(outDir, "runs")), RunParams{InputPath: input, SampleSize: 200, Seed: 42}, nil)
	return &pipelineFixture{service: service, tracker: tracker, ledger: csvLedger, outDir: outDir, input: input}
}

func TestBatteryPipeline_EndToEnd(t *testing.T) {
	fx := newPipelineFixture(t, testkit.DefaultBatteryConfig())

	manifest, err := fx.service.Run(context.Background(), RunParams{})
	require.NoError(t, err)
	assert.Equal(t, run.RunSuccess, manifest.State)
	assert.Equal(t, fx.input, manifest.Fingerprint.InputPath)
	for _, id := range manifest.Order {
		assert.Equal(t, run.TaskSuccess, manifest.Tasks[id].State, id)
	}
	assert.Equal(t, "1000", manifest.Tasks[stage.TaskLoadData].Outputs["rows"])
	assert.Equal(t, "200", manifest.Tasks[stage.TaskStratifiedSample].Outputs["rows"])

	records, err := fx.ledger.List(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 8)
	labels := map[string]int{}
	for _, r := range records {
		labels[r.Dataset]++
		assert.True(t, r.Finite(), "%s/%s", r.Model, r.Dataset)
		assert.LessOrEqual(t, r.R2, 1.0)
	}
	assert.Equal(t, map[string]int{metrics.LabelRaw: 4, metrics.LabelCleaned: 4}, labels)
	assert.Len(t, manifest.Metrics, 8)

	// one preprocessing run and eight training runs
	assert.Len(t, fx.tracker.Runs(), 9)
	_, ok := fx.tracker.RunNamed("Decision Tree - Cleaned Data")
	assert.True(t, ok)
	for _, name := range []string{PlotVoltageTrendFull, PlotVoltageDownsampled, PlotCorrelationMatrix} {
		assert.FileExists(t, filepath.Join(fx.outDir, name))
	}

	assert.FileExists(t, filepath.Join(fx.outDir, "runs", manifest.RunID.String()+".html"))
	stored, err := fx.service.Get(manifest.RunID)
	require.NoError(t, err)
	assert.Equal(t, manifest.RunID, stored.RunID)
	html, err := fx.service.Report(manifest.RunID)
	require.NoError(t, err)
	assert.Contains(t, string(html), "train_log_model_cleaned_data")
	assert.Contains(t, string(html), "Gradient Boosting")
}

func TestBatteryPipeline_LoadFailureBlocksEverything(t *testing.T) {
	fx := newPipelineFixture(t, testkit.DefaultBatteryConfig())

	manifest, err := fx.service.Run(context.Background(), RunParams{InputPath: filepath.Join(t.TempDir(), "missing.csv")})
	require.Error(t, err)
	assert.Equal(t, run.RunFailed, manifest.State)
	assert.Equal(t, run.TaskFailed, manifest.Tasks[stage.TaskLoadData].State)
	assert.Contains(t, manifest.Tasks[stage.TaskLoadData].Error, "data format")
	for _, id := range manifest.Order[1:] {
		assert.Equal(t, run.TaskUpstreamFailed, manifest.Tasks[id].State, id)
	}
	assert.Empty(t, fx.tracker.Runs())

	records, err := fx.ledger.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRunService_SingleActiveRun(t *testing.T) {
	plan := stage.BatteryPipelinePlan()
	release := make(chan struct{})
	tasks := (&recordingTasks{}).bind(plan, map[core.TaskID]TaskFunc{
		stage.TaskLoadData: func(context.Context, *RunState) (map[string]string, error) {
			<-release
			return nil, nil
		},
	})
	o, err := NewOrchestrator(plan, tasks, WithRetries(0, 0))
	require.NoError(t, err)
	service := NewRunService(o, NewReportWriter(t.TempDir()), RunParams{InputPath: "data.csv", SampleSize: 10, Seed: 42}, nil)

	queued, err := service.Trigger(context.Background(), RunParams{})
	require.NoError(t, err)
	assert.Equal(t, run.RunQueued, queued.State)

	_, err = service.Trigger(context.Background(), RunParams{})
	assert.ErrorIs(t, err, core.ErrRunActive)
	_, err = service.Run(context.Background(), RunParams{})
	assert.ErrorIs(t, err, core.ErrRunActive)

	live, err := service.Report(queued.RunID)
	require.NoError(t, err)
	assert.Contains(t, string(live), queued.RunID.String())

	close(release)
	service.Wait()

	done, err := service.Get(queued.RunID)
	require.NoError(t, err)
	assert.Equal(t, run.RunSuccess, done.State)

	require.Eventually(t, func() bool {
		_, err := service.Trigger(context.Background(), RunParams{})
		return err == nil
	}, time.Second, 10*time.Millisecond)
	service.Wait()
}

func TestRunService_UnknownRun(t *testing.T) {
	fx := newPipelineFixture(t, testkit.DefaultBatteryConfig())
	_, err := fx.service.Get(core.NewRunID())
	assert.True(t, core.IsNotFoundError(err))
	_, err = fx.service.Report(core.NewRunID())
	assert.True(t, core.IsNotFoundError(err))
}
