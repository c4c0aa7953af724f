package app

import (
	"context"
	"fmt"

	"batteryflow/domain/dataset"
	"batteryflow/domain/metrics"
	"batteryflow/domain/stats"
	"batteryflow/internal"
	pipelinemetrics "batteryflow/internal/metrics"
	"batteryflow/ports"
)

// Training constants shared by every run
const (
	TestSize          = 0.2
	TrainRandomState  = 42
	DatasetTypeTag    = "Dataset Type"
	trainFeatureCount = 1
)

// Model names in training order
const (
	ModelRandomForest     = "Random Forest"
	ModelLinearRegression = "Linear Regression"
	ModelGradientBoosting = "Gradient Boosting"
	ModelDecisionTree     = "Decision Tree"
)

// ModelSpec names an estimator and builds a fresh unfitted instance of it
type ModelSpec struct {
	Name string
	New  func() ports.Regressor
}

// Trainer fits each model on voltage -> discharge_capacity and records the evaluation
type Trainer struct {
	models  []ModelSpec
	tracker ports.Tracker
	ledger  ports.MetricsLedgerPort
	rng     ports.RNGPort
	metrics *pipelinemetrics.Pipeline
	logger  *internal.Logger
}

// NewTrainer creates a trainer over models, run in the given order
func NewTrainer(models []ModelSpec, tracker ports.Tracker, ledger ports.MetricsLedgerPort, rng ports.RNGPort, m *pipelinemetrics.Pipeline, logger *internal.Logger) *Trainer {
	if logger == nil {
		logger = internal.NewNopLogger()
	}
	return &Trainer{
		models:  models,
		tracker: tracker,
		ledger:  ledger,
		rng:     rng,
		metrics: m,
		logger:  logger,
	}
}

type trainTestData struct {
	xTrain, xTest [][]float64
	yTrain, yTest []float64
}

// Train splits frame 80/20 with a fixed seed and trains every model in its own
// tracked run named "<model> - <label>". It stops at the first failing model.
func (t *Trainer) Train(ctx context.Context, frame *dataset.Frame, label string) ([]metrics.Record, error) {
	data, err := t.split(frame)
	if err != nil {
		return nil, err
	}

	records := make([]metrics.Record, 0, len(t.models))
	for _, spec := range t.models {
		if err := ctx.Err(); err != nil {
			return records, err
		}
		rec, err := t.trainOne(ctx, spec, data, label)
		if err != nil {
			return records, fmt.Errorf("%s - %s: %w", spec.Name, label, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func (t *Trainer) split(frame *dataset.Frame) (*trainTestData, error) {
	X, err := frame.Matrix([]string{dataset.ColumnVoltage})
	if err != nil {
		return nil, err
	}
	y, err := frame.Column(dataset.ColumnDischargeCapacity)
	if err != nil {
		return nil, err
	}

	rnd := t.rng.SeededStream("train_test_split", TrainRandomState)
	train, test, err := stats.TrainTestSplit(frame.NumRows(), TestSize, rnd)
	if err != nil {
		return nil, fmt.Errorf("train/test split: %w", err)
	}

	data := &trainTestData{
		xTrain: make([][]float64, len(train)),
		yTrain: make([]float64, len(train)),
		xTest:  make([][]float64, len(test)),
		yTest:  make([]float64, len(test)),
	}
	for i, p := range train {
		data.xTrain[i], data.yTrain[i] = X[p], y[p]
	}
	for i, p := range test {
		data.xTest[i], data.yTest[i] = X[p], y[p]
	}
	return data, nil
}

func (t *Trainer) trainOne(ctx context.Context, spec ModelSpec, data *trainTestData, label string) (rec metrics.Record, err error) {
	runName := spec.Name + " - " + label
	tracked, err := t.tracker.StartRun(ctx, runName)
	if err != nil {
		return rec, fmt.Errorf("start run: %w", err)
	}
	defer func() {
		if endErr := endRun(ctx, tracked, err); err == nil {
			err = endErr
		}
	}()

	model := spec.New()
	if err := model.Fit(data.xTrain, data.yTrain); err != nil {
		return rec, fmt.Errorf("fit: %w", err)
	}
	pred, err := model.Predict(data.xTest)
	if err != nil {
		return rec, fmt.Errorf("predict: %w", err)
	}

	mse, err := stats.MeanSquaredError(data.yTest, pred)
	if err != nil {
		return rec, err
	}
	r2, err := stats.R2Score(data.yTest, pred)
	if err != nil {
		return rec, err
	}
	rec, err = metrics.NewRecord(spec.Name, label, mse, r2, len(data.yTest), trainFeatureCount)
	if err != nil {
		return rec, err
	}

	if err := tracked.SetTag(ctx, DatasetTypeTag, label); err != nil {
		return rec, err
	}
	params := []struct {
		key   string
		value interface{}
	}{
		{"Model", spec.Name},
		{"Dataset", label},
		{"Test_Size", TestSize},
		{"Random_State", TrainRandomState},
	}
	for _, p := range params {
		if err := tracked.LogParam(ctx, p.key, FormatParam(p.value)); err != nil {
			return rec, err
		}
	}
	values := rec.Values()
	for _, name := range []string{metrics.NameMSE, metrics.NameRMSE, metrics.NameR2, metrics.NameAdjustedR2} {
		if err := tracked.LogMetric(ctx, name, values[name]); err != nil {
			return rec, err
		}
	}

	if err := t.ledger.Append(ctx, rec); err != nil {
		return rec, fmt.Errorf("append ledger: %w", err)
	}
	t.metrics.LedgerAppended()

	sig := ports.ModelSignature{
		Inputs:  []string{dataset.ColumnVoltage},
		Outputs: []string{dataset.ColumnDischargeCapacity},
	}
	if err := tracked.LogModel(ctx, spec.Name+"_model", model, sig); err != nil {
		return rec, fmt.Errorf("log model: %w", err)
	}

	t.logger.Infow("model trained",
		"model", spec.Name,
		"dataset", label,
		"mse", rec.MSE,
		"r2", rec.R2,
		"run_id", tracked.ID())
	return rec, nil
}
