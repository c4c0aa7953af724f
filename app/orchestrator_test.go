package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"batteryflow/domain/core"
	"batteryflow/domain/run"
	"batteryflow/domain/stage"
	apperrors "batteryflow/internal/errors"
	"batteryflow/internal/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingTasks binds a no-op function to every stage and records call order
type recordingTasks struct {
	mu    sync.Mutex
	calls []core.TaskID
}

func (r *recordingTasks) bind(plan *stage.StagePlan, override map[core.TaskID]TaskFunc) map[core.TaskID]TaskFunc {
	tasks := make(map[core.TaskID]TaskFunc, len(plan.Stages))
	for _, s := range plan.Stages {
		id := s.ID
		fn := override[id]
		tasks[id] = func(ctx context.Context, state *RunState) (map[string]string, error) {
			r.mu.Lock()
			r.calls = append(r.calls, id)
			r.mu.Unlock()
			if fn != nil {
				return fn(ctx, state)
			}
			return nil, nil
		}
	}
	return tasks
}

func (r *recordingTasks) index(id core.TaskID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, c := range r.calls {
		if c == id {
			return i
		}
	}
	return -1
}

func newTestManifest(plan *stage.StagePlan) *run.Manifest {
	return run.NewManifest(core.NewRunID(), plan, run.NewRunFingerprint(plan.Hash(), "data.csv", 100, 42))
}

func TestOrchestrator_RunsEveryTaskInDependencyOrder(t *testing.T) {
	plan := stage.BatteryPipelinePlan()
	rec := &recordingTasks{}
	m := metrics.NewPipeline(nil)
	o, err := NewOrchestrator(plan, rec.bind(plan, nil), WithRetries(0, 0), WithMetrics(m))
	require.NoError(t, err)

	manifest := newTestManifest(plan)
	require.NoError(t, o.Execute(context.Background(), manifest, NewRunState(RunParams{})))

	snap := manifest.Snapshot()
	assert.Equal(t, run.RunSuccess, snap.State)
	assert.NotNil(t, snap.FinishedAt)
	for _, s := range plan.Stages {
		task := snap.Tasks[s.ID]
		assert.Equal(t, run.TaskSuccess, task.State, s.ID)
		assert.Equal(t, 1, task.Attempts)
		for _, up := range s.Upstream {
			assert.Less(t, rec.index(up), rec.index(s.ID), "%s before %s", up, s.ID)
		}
	}
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Runs.WithLabelValues(string(run.RunSuccess))))
}

func TestOrchestrator_FailureBlocksOnlyDescendants(t *testing.T) {
	plan := stage.BatteryPipelinePlan()
	rec := &recordingTasks{}
	boom := errors.New("z-score exploded")
	tasks := rec.bind(plan, map[core.TaskID]TaskFunc{
		stage.TaskRemoveOutliersZ: func(context.Context, *RunState) (map[string]string, error) { return nil, boom },
	})
	o, err := NewOrchestrator(plan, tasks, WithRetries(1, 0))
	require.NoError(t, err)

	manifest := newTestManifest(plan)
	err = o.Execute(context.Background(), manifest, NewRunState(RunParams{}))
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrUpstreamFailed)

	snap := manifest.Snapshot()
	assert.Equal(t, run.RunFailed, snap.State)
	assert.Equal(t, run.TaskSuccess, snap.Tasks[stage.TaskTrainRawData].State)
	assert.Equal(t, run.TaskFailed, snap.Tasks[stage.TaskRemoveOutliersZ].State)
	assert.Equal(t, 2, snap.Tasks[stage.TaskRemoveOutliersZ].Attempts)
	assert.Contains(t, snap.Tasks[stage.TaskRemoveOutliersZ].Error, "z-score exploded")
	assert.Equal(t, run.TaskUpstreamFailed, snap.Tasks[stage.TaskIsolationForest].State)
	assert.Equal(t, run.TaskUpstreamFailed, snap.Tasks[stage.TaskTrainCleanedData].State)
	assert.Equal(t, -1, rec.index(stage.TaskIsolationForest))
	assert.Equal(t, []core.TaskID{stage.TaskRemoveOutliersZ, stage.TaskIsolationForest, stage.TaskTrainCleanedData}, manifest.Failed())
}

func TestOrchestrator_ReturnsTaskError(t *testing.T) {
	plan := stage.BatteryPipelinePlan()
	rec := &recordingTasks{}
	boom := errors.New("forest diverged")
	tasks := rec.bind(plan, map[core.TaskID]TaskFunc{
		stage.TaskIsolationForest: func(context.Context, *RunState) (map[string]string, error) { return nil, boom },
	})
	o, err := NewOrchestrator(plan, tasks, WithRetries(0, 0))
	require.NoError(t, err)

	err = o.Execute(context.Background(), newTestManifest(plan), NewRunState(RunParams{}))
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrUpstreamFailed)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, apperrors.CodeTaskFailed, apperrors.GetCode(err))
	assert.Contains(t, err.Error(), string(stage.TaskIsolationForest))
}

func TestOrchestrator_RetrySucceeds(t *testing.T) {
	plan := stage.BatteryPipelinePlan()
	var attempts int32
	tasks := (&recordingTasks{}).bind(plan, map[core.TaskID]TaskFunc{
		stage.TaskLoadData: func(context.Context, *RunState) (map[string]string, error) {
			if atomic.AddInt32(&attempts, 1) == 1 {
				return nil, errors.New("transient")
			}
			return map[string]string{"rows": "10"}, nil
		},
	})
	o, err := NewOrchestrator(plan, tasks, WithRetries(1, time.Millisecond))
	require.NoError(t, err)

	manifest := newTestManifest(plan)
	require.NoError(t, o.Execute(context.Background(), manifest, NewRunState(RunParams{})))

	load, ok := manifest.Task(stage.TaskLoadData)
	require.True(t, ok)
	assert.Equal(t, run.TaskSuccess, load.State)
	assert.Equal(t, 2, load.Attempts)
	assert.Equal(t, "10", load.Outputs["rows"])
	assert.Empty(t, load.Error)
}

func TestOrchestrator_BranchesRunConcurrently(t *testing.T) {
	plan := stage.BatteryPipelinePlan()
	raw := make(chan struct{})
	tasks := (&recordingTasks{}).bind(plan, map[core.TaskID]TaskFunc{
		// Blocks until the cleaned branch has started, which requires concurrent execution.
		stage.TaskTrainRawData: func(ctx context.Context, _ *RunState) (map[string]string, error) {
			select {
			case <-raw:
				return nil, nil
			case <-time.After(5 * time.Second):
				return nil, errors.New("cleaned branch never started")
			}
		},
		stage.TaskRemoveOutliersZ: func(context.Context, *RunState) (map[string]string, error) {
			close(raw)
			return nil, nil
		},
	})
	o, err := NewOrchestrator(plan, tasks, WithRetries(0, 0))
	require.NoError(t, err)
	require.NoError(t, o.Execute(context.Background(), newTestManifest(plan), NewRunState(RunParams{})))
}

func TestOrchestrator_CancelledContext(t *testing.T) {
	plan := stage.BatteryPipelinePlan()
	rec := &recordingTasks{}
	o, err := NewOrchestrator(plan, rec.bind(plan, nil), WithRetries(3, time.Hour))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	manifest := newTestManifest(plan)
	require.Error(t, o.Execute(ctx, manifest, NewRunState(RunParams{})))

	snap := manifest.Snapshot()
	assert.Equal(t, run.TaskFailed, snap.Tasks[stage.TaskLoadData].State)
	assert.Equal(t, run.TaskUpstreamFailed, snap.Tasks[stage.TaskTrainCleanedData].State)
	assert.Empty(t, rec.calls)
}

func TestNewOrchestrator_Validation(t *testing.T) {
	plan := stage.BatteryPipelinePlan()
	tasks := (&recordingTasks{}).bind(plan, nil)
	delete(tasks, stage.TaskPreprocessing)
	_, err := NewOrchestrator(plan, tasks)
	assert.ErrorIs(t, err, core.ErrInvalidArgument)

	cyclic := stage.NewStagePlan("cyclic", "", []stage.StageSpec{
		{ID: "a", Upstream: []core.TaskID{"b"}},
		{ID: "b", Upstream: []core.TaskID{"a"}},
	})
	_, err = NewOrchestrator(cyclic, map[core.TaskID]TaskFunc{})
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
}
