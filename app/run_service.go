package app

import (
	"context"
	"errors"
	"sync"

	"batteryflow/domain/core"
	"batteryflow/domain/run"
	"batteryflow/domain/stage"
	"batteryflow/internal"

	"golang.org/x/sync/semaphore"
)

// RunService starts pipeline runs, allowing one active run at a time, and
// keeps their manifests for lookup
type RunService struct {
	orchestrator *Orchestrator
	reports      *ReportWriter
	defaults     RunParams
	active       *semaphore.Weighted
	logger       *internal.Logger

	mu   sync.RWMutex
	runs map[core.RunID]*run.Manifest
	wg   sync.WaitGroup
}

// NewRunService creates a run service; zero fields of a request fall back to defaults
func NewRunService(orchestrator *Orchestrator, reports *ReportWriter, defaults RunParams, logger *internal.Logger) *RunService {
	if logger == nil {
		logger = internal.NewNopLogger()
	}
	return &RunService{
		orchestrator: orchestrator,
		reports:      reports,
		defaults:     defaults,
		active:       semaphore.NewWeighted(1),
		logger:       logger,
		runs:         make(map[core.RunID]*run.Manifest),
	}
}

// Plan returns the DAG executed by every run
func (s *RunService) Plan() *stage.StagePlan { return s.orchestrator.Plan() }

// Run executes one pipeline run and waits for it. The manifest is returned
// even when tasks failed; err then reports the failure.
func (s *RunService) Run(ctx context.Context, params RunParams) (*run.Manifest, error) {
	if !s.active.TryAcquire(1) {
		return nil, core.ErrRunActive
	}
	defer s.active.Release(1)

	m := s.newManifest(params)
	err := s.execute(ctx, m, params)
	return m.Snapshot(), err
}

// Trigger starts a run in the background and returns its queued manifest.
// ctx bounds the run itself, not the call.
func (s *RunService) Trigger(ctx context.Context, params RunParams) (*run.Manifest, error) {
	if !s.active.TryAcquire(1) {
		return nil, core.ErrRunActive
	}
	m := s.newManifest(params)
	snap := m.Snapshot()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.active.Release(1)
		if err := s.execute(ctx, m, params); err != nil {
			s.logger.Warnw("triggered run did not succeed", "run_id", m.RunID, "error", err)
		}
	}()
	return snap, nil
}

// Wait blocks until every triggered run has finished
func (s *RunService) Wait() { s.wg.Wait() }

// Get returns a snapshot of a run's manifest, from memory or the runs directory
func (s *RunService) Get(runID core.RunID) (*run.Manifest, error) {
	s.mu.RLock()
	m, ok := s.runs[runID]
	s.mu.RUnlock()
	if ok {
		return m.Snapshot(), nil
	}
	return s.reports.LoadManifest(runID)
}

// Report returns the HTML report of a run. Runs still in progress are rendered live.
func (s *RunService) Report(runID core.RunID) ([]byte, error) {
	s.mu.RLock()
	m, ok := s.runs[runID]
	s.mu.RUnlock()
	if ok {
		snap := m.Snapshot()
		if snap.FinishedAt == nil {
			return RenderReport(snap), nil
		}
	}
	return s.reports.LoadReport(runID)
}

func (s *RunService) newManifest(params RunParams) *run.Manifest {
	params = s.withDefaults(params)
	plan := s.orchestrator.Plan()
	fp := run.NewRunFingerprint(plan.Hash(), params.InputPath, params.SampleSize, params.Seed)
	m := run.NewManifest(core.NewRunID(), plan, fp)

	s.mu.Lock()
	s.runs[m.RunID] = m
	s.mu.Unlock()
	return m
}

func (s *RunService) execute(ctx context.Context, m *run.Manifest, params RunParams) error {
	state := NewRunState(s.withDefaults(params))
	runErr := s.orchestrator.Execute(ctx, m, state)
	if err := s.reports.Write(m); err != nil {
		s.logger.Errorw("write run report", "run_id", m.RunID, "error", err)
		return errors.Join(runErr, err)
	}
	s.logger.Infow("run report written", "run_id", m.RunID, "path", s.reports.ReportPath(m.RunID))
	return runErr
}

func (s *RunService) withDefaults(p RunParams) RunParams {
	if p.InputPath == "" {
		p.InputPath = s.defaults.InputPath
	}
	if p.SampleSize == 0 {
		p.SampleSize = s.defaults.SampleSize
	}
	if p.Seed == 0 {
		p.Seed = s.defaults.Seed
	}
	return p
}
