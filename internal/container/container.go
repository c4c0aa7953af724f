package container

import (
	"context"
	"fmt"
	"path/filepath"

	"batteryflow/adapters/artifacts"
	"batteryflow/adapters/excel"
	"batteryflow/adapters/filetracker"
	"batteryflow/adapters/ledger"
	"batteryflow/adapters/ml"
	"batteryflow/adapters/mlflow"
	"batteryflow/adapters/plot"
	"batteryflow/adapters/postgres"
	"batteryflow/adapters/rng"
	"batteryflow/app"
	"batteryflow/domain/dataset"
	"batteryflow/domain/stage"
	"batteryflow/internal"
	"batteryflow/internal/config"
	"batteryflow/internal/errors"
	"batteryflow/internal/metrics"
	"batteryflow/ports"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config
	Logger *internal.Logger

	// Infrastructure
	DB       *sqlx.DB // nil unless a SQL ledger mirror is configured
	Registry *prometheus.Registry
	Metrics  *metrics.Pipeline

	// Ports
	Tracker   ports.Tracker
	Artifacts ports.ArtifactStore
	Ledger    ports.MetricsLedger

	// Application
	Pipeline     *app.BatteryPipeline
	Orchestrator *app.Orchestrator
	Runs         *app.RunService
}

// New wires every component selected by cfg
func New(ctx context.Context, cfg *config.Config, logger *internal.Logger) (*Container, error) {
	if cfg == nil {
		return nil, errors.ConfigInvalid("config cannot be nil")
	}
	if logger == nil {
		logger = internal.NewNopLogger()
	}

	c := &Container{
		Config:   cfg,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
	}
	c.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	c.Metrics = metrics.NewPipeline(c.Registry)

	if err := c.initTracking(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to initialize experiment tracking")
	}
	if err := c.initLedger(ctx); err != nil {
		c.Shutdown(ctx)
		return nil, errors.Wrap(err, "failed to initialize metrics ledger")
	}
	if err := c.initPipeline(); err != nil {
		c.Shutdown(ctx)
		return nil, errors.Wrap(err, "failed to initialize pipeline")
	}

	logger.Infow("container initialized",
		"tracking", cfg.Tracking.Backend,
		"artifacts", cfg.Artifacts.Backend,
		"ledger", c.ledgerDescription())
	return c, nil
}

// initTracking selects the artifact store and the tracker
func (c *Container) initTracking(ctx context.Context) error {
	cfg := c.Config
	var client *mlflow.Client
	if cfg.Tracking.Backend == config.TrackingMLflow {
		client = mlflow.NewClient(cfg.Tracking.URI, cfg.Tracking.Timeout)
	}

	switch cfg.Artifacts.Backend {
	case config.ArtifactMLflow:
		if client == nil {
			return errors.ConfigInvalid("mlflow artifacts require the mlflow tracking backend")
		}
		c.Artifacts = mlflow.NewArtifactStore(client)
	case config.ArtifactS3:
		store, err := artifacts.NewS3Store(artifacts.S3Config{
			Endpoint:  cfg.Artifacts.Endpoint,
			AccessKey: cfg.Artifacts.AccessKey,
			SecretKey: cfg.Artifacts.SecretKey,
			Bucket:    cfg.Artifacts.Bucket,
			UseSSL:    cfg.Artifacts.UseSSL,
		}, c.Logger)
		if err != nil {
			return err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return errors.ExternalServiceError("s3", err)
		}
		c.Artifacts = store
	case config.ArtifactLocal:
		c.Artifacts = artifacts.NewLocalStore(filepath.Join(cfg.Output.Dir, "artifacts"))
	default:
		return errors.ConfigInvalid(fmt.Sprintf("unknown artifact backend %q", cfg.Artifacts.Backend))
	}

	switch cfg.Tracking.Backend {
	case config.TrackingMLflow:
		c.Tracker = mlflow.NewTracker(client, cfg.Tracking.Experiment, c.Artifacts, c.Logger)
	case config.TrackingFile:
		store := c.Artifacts
		if cfg.Artifacts.Backend == config.ArtifactLocal {
			// artifacts live next to run metadata
			store = nil
		}
		c.Tracker = filetracker.NewTracker(cfg.Tracking.Dir, cfg.Tracking.Experiment, store, c.Logger)
	default:
		return errors.ConfigInvalid(fmt.Sprintf("unknown tracking backend %q", cfg.Tracking.Backend))
	}
	return nil
}

// initLedger builds the CSV ledger and, when configured, its SQL mirror
func (c *Container) initLedger(ctx context.Context) error {
	primary := ledger.NewCSVLedger(c.Config.LedgerPath())
	if c.Config.Ledger.DBDriver == "" {
		c.Ledger = primary
		return nil
	}

	db, err := postgres.Open(ctx, c.Config.Ledger.DBDriver, c.Config.Ledger.DBURL)
	if err != nil {
		return errors.ExternalServiceError(c.Config.Ledger.DBDriver, err)
	}
	c.DB = db
	c.Ledger = ledger.NewFanOut(primary, postgres.NewMetricsLedger(db))
	return nil
}

func (c *Container) initPipeline() error {
	cfg := c.Config
	source := rng.New()

	c.Pipeline = &app.BatteryPipeline{
		Loader:       app.NewLoader(excel.NewDataReader(c.Logger, dataset.RequiredColumns...), cfg.Data.Path, c.Logger),
		Sampler:      app.NewSampler(source, cfg.Data.Seed, c.Logger),
		Preprocessor: app.NewPreprocessor(c.Tracker, plot.NewRenderer(), cfg.Output.Dir, c.Logger),
		ZScore:       app.NewZScoreFilter(cfg.Outliers.ZThreshold, c.Metrics, c.Logger),
		Isolation:    app.NewIsolationFilter(DetectorFactory(cfg.Outliers.Contamination), c.Metrics, c.Logger),
		Trainer:      app.NewTrainer(DefaultModels(), c.Tracker, c.Ledger, source, c.Metrics, c.Logger),
		Features:     dataset.BatteryFeatures,
	}

	o, err := app.NewOrchestrator(stage.BatteryPipelinePlan(), c.Pipeline.Tasks(),
		app.WithRetries(cfg.Pipeline.TaskRetries, cfg.Pipeline.RetryDelay),
		app.WithMetrics(c.Metrics),
		app.WithLogger(c.Logger))
	if err != nil {
		return err
	}
	c.Orchestrator = o

	defaults := app.RunParams{
		InputPath:  cfg.Data.Path,
		SampleSize: cfg.Data.SampleSize,
		Seed:       cfg.Data.Seed,
	}
	c.Runs = app.NewRunService(o, app.NewReportWriter(cfg.RunsDir()), defaults, c.Logger)
	return nil
}

func (c *Container) ledgerDescription() string {
	if c.DB != nil {
		return "csv+" + c.Config.Ledger.DBDriver
	}
	return "csv"
}

// DefaultModels returns the four regressors in training order
func DefaultModels() []app.ModelSpec {
	return []app.ModelSpec{
		{Name: app.ModelRandomForest, New: func() ports.Regressor {
			return ml.NewRandomForest(ml.WithNEstimators(100), ml.WithBootstrap(true), ml.WithForestRandomState(app.TrainRandomState))
		}},
		{Name: app.ModelLinearRegression, New: func() ports.Regressor {
			return ml.NewLinearRegression()
		}},
		{Name: app.ModelGradientBoosting, New: func() ports.Regressor {
			return ml.NewGradientBoosting(
				ml.WithRounds(100),
				ml.WithLearningRate(0.3),
				ml.WithBoostingMaxDepth(6),
				ml.WithLambda(1),
				ml.WithBoostingRandomState(app.TrainRandomState))
		}},
		{Name: app.ModelDecisionTree, New: func() ports.Regressor {
			return ml.NewDecisionTree(ml.WithTreeRandomState(app.TrainRandomState))
		}},
	}
}

// DetectorFactory builds a seeded isolation forest per filter pass
func DetectorFactory(contamination float64) func() ports.OutlierDetector {
	return func() ports.OutlierDetector {
		return ml.NewIsolationForest(ml.WithContamination(contamination), ml.WithIsolationRandomState(42))
	}
}

// Shutdown releases the database connection
func (c *Container) Shutdown(ctx context.Context) error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}
