package artifacts

import (
	"bytes"
	"context"
	"encoding/json"
	"mime"
	"os"
	"path"
	"path/filepath"

	"batteryflow/domain/core"
	"batteryflow/ports"

	"gopkg.in/yaml.v3"
)

// Layout of a run's artifacts inside a store
const (
	artifactsDir  = "artifacts"
	modelFile     = "model.json"
	modelMetaFile = "MLmodel"
)

// RunKey returns the store key of an artifact path of one run
func RunKey(experimentID, runID, artifactPath string) string {
	return path.Join(experimentID, runID, artifactsDir, artifactPath)
}

// MLModel is the descriptor written next to a logged model
type MLModel struct {
	ArtifactPath   string                `yaml:"artifact_path"`
	RunID          string                `yaml:"run_id"`
	UTCTimeCreated string                `yaml:"utc_time_created"`
	Flavors        map[string]Flavor     `yaml:"flavors"`
	Signature      *ports.ModelSignature `yaml:"signature,omitempty"`
}

// Flavor describes how to load the stored model
type Flavor struct {
	Family    string `yaml:"family"`
	ModelFile string `yaml:"model_file"`
}

// PutFile uploads a local file as an artifact of a run. The artifact keeps the file's base name.
func PutFile(ctx context.Context, store ports.ArtifactStore, experimentID, runID, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", core.NewResourceError(localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", core.NewResourceError(localPath, err)
	}
	key := RunKey(experimentID, runID, filepath.Base(localPath))
	contentType := mime.TypeByExtension(filepath.Ext(localPath))
	if err := store.Put(ctx, key, f, info.Size(), contentType); err != nil {
		return "", err
	}
	return key, nil
}

// PutModel writes <name>/model.json and <name>/MLmodel for a fitted model
func PutModel(ctx context.Context, store ports.ArtifactStore, experimentID, runID, name string, model ports.Model, sig ports.ModelSignature) error {
	state, err := json.Marshal(model)
	if err != nil {
		return core.NewResourceError(name+" state", err)
	}

	meta := MLModel{
		ArtifactPath:   name,
		RunID:          runID,
		UTCTimeCreated: core.Now().Time().Format("2006-01-02 15:04:05.000000"),
		Flavors: map[string]Flavor{
			"batteryflow": {Family: string(model.Family()), ModelFile: modelFile},
		},
	}
	if len(sig.Inputs) > 0 || len(sig.Outputs) > 0 {
		meta.Signature = &sig
	}
	metaYAML, err := yaml.Marshal(meta)
	if err != nil {
		return core.NewResourceError(name+" descriptor", err)
	}

	if err := store.Put(ctx, RunKey(experimentID, runID, path.Join(name, modelFile)), bytes.NewReader(state), int64(len(state)), "application/json"); err != nil {
		return err
	}
	return store.Put(ctx, RunKey(experimentID, runID, path.Join(name, modelMetaFile)), bytes.NewReader(metaYAML), int64(len(metaYAML)), "application/yaml")
}
