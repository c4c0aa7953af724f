package ports

import (
	"context"
)

// RunStatus is the terminal status reported when a tracked run ends
type RunStatus string

const (
	RunStatusFinished RunStatus = "FINISHED"
	RunStatusFailed   RunStatus = "FAILED"
	RunStatusKilled   RunStatus = "KILLED"
)

// ModelFamily identifies the estimator type behind a logged model
type ModelFamily string

const (
	FamilyLinear   ModelFamily = "linear"
	FamilyTree     ModelFamily = "tree"
	FamilyForest   ModelFamily = "forest"
	FamilyBoosting ModelFamily = "boosting"
)

// Tracker opens tracked runs against an experiment tracking backend
type Tracker interface {
	// StartRun opens a run under the configured experiment. The caller must End it on every path.
	StartRun(ctx context.Context, runName string) (TrackedRun, error)
}

// TrackedRun collects the tags, params, metrics, artifacts and models of one run
type TrackedRun interface {
	ID() string
	SetTag(ctx context.Context, key, value string) error
	LogParam(ctx context.Context, key, value string) error
	LogMetric(ctx context.Context, key string, value float64) error
	// LogArtifact uploads a local file under the run's artifact root
	LogArtifact(ctx context.Context, localPath string) error
	// LogModel stores a fitted model under the given artifact name
	LogModel(ctx context.Context, name string, model Model, sig ModelSignature) error
	End(ctx context.Context, status RunStatus) error
}

// ModelSignature names the columns a logged model consumes and produces
type ModelSignature struct {
	Inputs  []string `yaml:"inputs"`
	Outputs []string `yaml:"outputs"`
}

// Model is a fitted estimator that can be persisted as an artifact
type Model interface {
	Family() ModelFamily
	// MarshalJSON encodes the fitted state
	MarshalJSON() ([]byte, error)
}
