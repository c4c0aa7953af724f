package testkit

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"batteryflow/ports"

	"github.com/stretchr/testify/mock"
)

// RecordedRun is everything logged to one run of a RecordingTracker
type RecordedRun struct {
	ID        string
	Name      string
	Tags      map[string]string
	Params    map[string]string
	Metrics   map[string]float64
	Artifacts []string // base names
	Models    map[string]ports.ModelFamily
	Status    ports.RunStatus
	Ended     bool
}

// RecordingTracker keeps tracked runs in memory
type RecordingTracker struct {
	mu   sync.Mutex
	runs []*RecordedRun

	// FailArtifact makes LogArtifact fail for this base name
	FailArtifact string
}

// NewRecordingTracker creates an empty tracker
func NewRecordingTracker() *RecordingTracker {
	return &RecordingTracker{}
}

// StartRun records a new run
func (t *RecordingTracker) StartRun(ctx context.Context, runName string) (ports.TrackedRun, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := &RecordedRun{
		ID:      fmt.Sprintf("run-%d", len(t.runs)+1),
		Name:    runName,
		Tags:    map[string]string{},
		Params:  map[string]string{},
		Metrics: map[string]float64{},
		Models:  map[string]ports.ModelFamily{},
	}
	t.runs = append(t.runs, r)
	return &recordingRun{tracker: t, rec: r}, nil
}

// Runs returns copies of the recorded runs in start order
func (t *RecordingTracker) Runs() []RecordedRun {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]RecordedRun, len(t.runs))
	for i, r := range t.runs {
		out[i] = *r
		out[i].Artifacts = append([]string(nil), r.Artifacts...)
	}
	return out
}

// RunNamed returns the first run with the given name
func (t *RecordingTracker) RunNamed(name string) (RecordedRun, bool) {
	for _, r := range t.Runs() {
		if r.Name == name {
			return r, true
		}
	}
	return RecordedRun{}, false
}

type recordingRun struct {
	tracker *RecordingTracker
	rec     *RecordedRun
}

func (r *recordingRun) ID() string { return r.rec.ID }

func (r *recordingRun) SetTag(ctx context.Context, key, value string) error {
	r.tracker.mu.Lock()
	defer r.tracker.mu.Unlock()
	r.rec.Tags[key] = value
	return nil
}

func (r *recordingRun) LogParam(ctx context.Context, key, value string) error {
	r.tracker.mu.Lock()
	defer r.tracker.mu.Unlock()
	r.rec.Params[key] = value
	return nil
}

func (r *recordingRun) LogMetric(ctx context.Context, key string, value float64) error {
	r.tracker.mu.Lock()
	defer r.tracker.mu.Unlock()
	r.rec.Metrics[key] = value
	return nil
}

func (r *recordingRun) LogArtifact(ctx context.Context, localPath string) error {
	r.tracker.mu.Lock()
	defer r.tracker.mu.Unlock()
	name := filepath.Base(localPath)
	if name == r.tracker.FailArtifact {
		return fmt.Errorf("artifact store unavailable")
	}
	r.rec.Artifacts = append(r.rec.Artifacts, name)
	return nil
}

func (r *recordingRun) LogModel(ctx context.Context, name string, model ports.Model, sig ports.ModelSignature) error {
	if _, err := model.MarshalJSON(); err != nil {
		return err
	}
	r.tracker.mu.Lock()
	defer r.tracker.mu.Unlock()
	r.rec.Models[name] = model.Family()
	return nil
}

func (r *recordingRun) End(ctx context.Context, status ports.RunStatus) error {
	r.tracker.mu.Lock()
	defer r.tracker.mu.Unlock()
	r.rec.Status = status
	r.rec.Ended = true
	return nil
}

// MockTracker is a testify mock of ports.Tracker
type MockTracker struct {
	mock.Mock
}

func (m *MockTracker) StartRun(ctx context.Context, runName string) (ports.TrackedRun, error) {
	args := m.Called(ctx, runName)
	run, _ := args.Get(0).(ports.TrackedRun)
	return run, args.Error(1)
}
