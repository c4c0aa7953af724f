package mlflow

import (
	"context"
	"time"

	"batteryflow/adapters/artifacts"
	"batteryflow/internal"
	"batteryflow/ports"
)

// Tracker opens runs on an MLflow server under one experiment
type Tracker struct {
	client     *Client
	experiment string
	store      ports.ArtifactStore
	logger     *internal.Logger
	now        func() time.Time
}

// NewTracker creates a tracker. Artifacts go to store, which may be the server's proxy or any other store.
func NewTracker(client *Client, experiment string, store ports.ArtifactStore, logger *internal.Logger) *Tracker {
	if logger == nil {
		logger = internal.NewNopLogger()
	}
	return &Tracker{
		client:     client,
		experiment: experiment,
		store:      store,
		logger:     logger,
		now:        time.Now,
	}
}

// StartRun resolves the experiment, creating it if needed, and creates a run in it
func (t *Tracker) StartRun(ctx context.Context, runName string) (ports.TrackedRun, error) {
	expID, err := t.client.EnsureExperiment(ctx, t.experiment)
	if err != nil {
		return nil, err
	}
	info, err := t.client.CreateRun(ctx, expID, runName, t.now())
	if err != nil {
		return nil, err
	}
	t.logger.Debug("[mlflow] started run %s (%s) in experiment %s", info.RunID, runName, expID)
	return &run{tracker: t, experimentID: expID, info: *info}, nil
}

type run struct {
	tracker      *Tracker
	experimentID string
	info         RunInfo
}

func (r *run) ID() string { return r.info.RunID }

func (r *run) SetTag(ctx context.Context, key, value string) error {
	return r.tracker.client.SetTag(ctx, r.info.RunID, key, value)
}

func (r *run) LogParam(ctx context.Context, key, value string) error {
	return r.tracker.client.LogParam(ctx, r.info.RunID, key, value)
}

func (r *run) LogMetric(ctx context.Context, key string, value float64) error {
	return r.tracker.client.LogMetric(ctx, r.info.RunID, key, value, r.tracker.now())
}

func (r *run) LogArtifact(ctx context.Context, localPath string) error {
	key, err := artifacts.PutFile(ctx, r.tracker.store, r.experimentID, r.info.RunID, localPath)
	if err != nil {
		return err
	}
	r.tracker.logger.Debug("[mlflow] logged artifact %s", r.tracker.store.URI(key))
	return nil
}

func (r *run) LogModel(ctx context.Context, name string, model ports.Model, sig ports.ModelSignature) error {
	if err := artifacts.PutModel(ctx, r.tracker.store, r.experimentID, r.info.RunID, name, model, sig); err != nil {
		return err
	}
	return r.SetTag(ctx, "batteryflow.model."+name, string(model.Family()))
}

func (r *run) End(ctx context.Context, status ports.RunStatus) error {
	if err := r.tracker.client.UpdateRun(ctx, r.info.RunID, string(status), r.tracker.now()); err != nil {
		return err
	}
	r.tracker.logger.Debug("[mlflow] ended run %s with %s", r.info.RunID, status)
	return nil
}
