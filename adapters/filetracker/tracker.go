// Package filetracker records tracked runs in a local directory tree laid out like an MLflow file store.
package filetracker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"batteryflow/adapters/artifacts"
	"batteryflow/domain/core"
	"batteryflow/internal"
	"batteryflow/ports"

	"gopkg.in/yaml.v3"
)

const metaFile = "meta.yaml"

// ExperimentMeta is written to <root>/<experiment id>/meta.yaml
type ExperimentMeta struct {
	ExperimentID     string `yaml:"experiment_id"`
	Name             string `yaml:"name"`
	ArtifactLocation string `yaml:"artifact_location"`
	LifecycleStage   string `yaml:"lifecycle_stage"`
	CreationTime     int64  `yaml:"creation_time"`
}

// RunMeta is written to <root>/<experiment id>/<run id>/meta.yaml
type RunMeta struct {
	RunID        string `yaml:"run_id"`
	RunName      string `yaml:"run_name"`
	ExperimentID string `yaml:"experiment_id"`
	Status       string `yaml:"status"`
	StartTime    int64  `yaml:"start_time"`
	EndTime      int64  `yaml:"end_time,omitempty"`
	ArtifactURI  string `yaml:"artifact_uri"`
}

// Tracker stores runs below root
type Tracker struct {
	root       string
	experiment string
	store      ports.ArtifactStore
	logger     *internal.Logger

	mu sync.Mutex // serializes experiment creation
}

// NewTracker creates a file tracker. A nil store keeps artifacts inside the run directories.
func NewTracker(root, experiment string, store ports.ArtifactStore, logger *internal.Logger) *Tracker {
	if store == nil {
		store = artifacts.NewLocalStore(root)
	}
	if logger == nil {
		logger = internal.NewNopLogger()
	}
	return &Tracker{root: root, experiment: experiment, store: store, logger: logger}
}

// StartRun creates the experiment on first use and a new run directory in it
func (t *Tracker) StartRun(ctx context.Context, runName string) (ports.TrackedRun, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	expID, err := t.ensureExperiment()
	if err != nil {
		return nil, err
	}

	runID := strings.ReplaceAll(core.NewID().String(), "-", "")
	dir := filepath.Join(t.root, expID, runID)
	for _, sub := range []string{"params", "metrics", "tags"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, core.NewResourceError(dir, err)
		}
	}

	r := &run{
		tracker: t,
		dir:     dir,
		meta: RunMeta{
			RunID:        runID,
			RunName:      runName,
			ExperimentID: expID,
			Status:       "RUNNING",
			StartTime:    time.Now().UnixMilli(),
			ArtifactURI:  t.store.URI(artifacts.RunKey(expID, runID, "")),
		},
	}
	if err := r.writeMeta(); err != nil {
		return nil, err
	}
	if err := r.SetTag(ctx, "mlflow.runName", runName); err != nil {
		return nil, err
	}
	t.logger.Debug("[filetracker] started run %s (%s)", runID, runName)
	return r, nil
}

// ensureExperiment returns the id of the configured experiment, creating it when missing
func (t *Tracker) ensureExperiment() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := os.MkdirAll(t.root, 0o755); err != nil {
		return "", core.NewResourceError(t.root, err)
	}
	entries, err := os.ReadDir(t.root)
	if err != nil {
		return "", core.NewResourceError(t.root, err)
	}

	next := 1
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		if id >= next {
			next = id + 1
		}
		var meta ExperimentMeta
		if err := readYAML(filepath.Join(t.root, e.Name(), metaFile), &meta); err != nil {
			continue
		}
		if meta.Name == t.experiment {
			return meta.ExperimentID, nil
		}
	}

	id := strconv.Itoa(next)
	meta := ExperimentMeta{
		ExperimentID:     id,
		Name:             t.experiment,
		ArtifactLocation: t.store.URI(id),
		LifecycleStage:   "active",
		CreationTime:     time.Now().UnixMilli(),
	}
	if err := writeYAML(filepath.Join(t.root, id, metaFile), meta); err != nil {
		return "", err
	}
	t.logger.Info("[filetracker] created experiment %s (%s)", t.experiment, id)
	return id, nil
}

type run struct {
	tracker *Tracker
	dir     string

	mu   sync.Mutex
	meta RunMeta
}

func (r *run) ID() string { return r.meta.RunID }

func (r *run) SetTag(ctx context.Context, key, value string) error {
	return r.writeValue("tags", key, value)
}

func (r *run) LogParam(ctx context.Context, key, value string) error {
	return r.writeValue("params", key, value)
}

// LogMetric appends "<timestamp> <value> <step>" to the metric's history file
func (r *run) LogMetric(ctx context.Context, key string, value float64) error {
	path, err := r.valuePath("metrics", key)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return core.NewResourceError(path, err)
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, "%d %s 0\n", time.Now().UnixMilli(), strconv.FormatFloat(value, 'g', -1, 64)); err != nil {
		return core.NewResourceError(path, err)
	}
	return nil
}

func (r *run) LogArtifact(ctx context.Context, localPath string) error {
	_, err := artifacts.PutFile(ctx, r.tracker.store, r.meta.ExperimentID, r.meta.RunID, localPath)
	return err
}

func (r *run) LogModel(ctx context.Context, name string, model ports.Model, sig ports.ModelSignature) error {
	if err := artifacts.PutModel(ctx, r.tracker.store, r.meta.ExperimentID, r.meta.RunID, name, model, sig); err != nil {
		return err
	}
	return r.SetTag(ctx, "batteryflow.model."+name, string(model.Family()))
}

func (r *run) End(ctx context.Context, status ports.RunStatus) error {
	r.mu.Lock()
	r.meta.Status = string(status)
	r.meta.EndTime = time.Now().UnixMilli()
	r.mu.Unlock()
	return r.writeMeta()
}

func (r *run) writeMeta() error {
	r.mu.Lock()
	meta := r.meta
	r.mu.Unlock()
	return writeYAML(filepath.Join(r.dir, metaFile), meta)
}

func (r *run) writeValue(kind, key, value string) error {
	path, err := r.valuePath(kind, key)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(value), 0o644); err != nil {
		return core.NewResourceError(path, err)
	}
	return nil
}

func (r *run) valuePath(kind, key string) (string, error) {
	if key == "" || strings.Contains(key, "..") || strings.ContainsAny(key, `/\`) {
		return "", core.NewInvalidArgumentError(kind+" key", key)
	}
	return filepath.Join(r.dir, kind, key), nil
}

func readYAML(path string, out interface{}) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(raw, out)
}

func writeYAML(path string, v interface{}) error {
	raw, err := yaml.Marshal(v)
	if err != nil {
		return core.NewResourceError(path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return core.NewResourceError(path, err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return core.NewResourceError(path, err)
	}
	return nil
}
