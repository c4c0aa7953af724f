package app

import (
	"context"
	"fmt"
	"time"

	"batteryflow/domain/core"
	"batteryflow/domain/run"
	"batteryflow/domain/stage"
	"batteryflow/internal"
	apperrors "batteryflow/internal/errors"
	"batteryflow/internal/metrics"

	"golang.org/x/sync/errgroup"
)

// TaskFunc executes one task against the run's handoff store. The returned
// outputs are recorded on the task's manifest entry.
type TaskFunc func(ctx context.Context, state *RunState) (outputs map[string]string, err error)

// Orchestrator executes a stage plan, running every task whose upstreams succeeded
type Orchestrator struct {
	plan       *stage.StagePlan
	tasks      map[core.TaskID]TaskFunc
	retries    int
	retryDelay time.Duration
	metrics    *metrics.Pipeline
	logger     *internal.Logger
}

// OrchestratorOption configures an Orchestrator
type OrchestratorOption func(*Orchestrator)

// WithRetries sets how many times a failed task is re-attempted and the wait between attempts
func WithRetries(retries int, delay time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		o.retries = retries
		o.retryDelay = delay
	}
}

// WithMetrics reports task and run outcomes to m
func WithMetrics(m *metrics.Pipeline) OrchestratorOption {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithLogger sets the orchestrator logger
func WithLogger(l *internal.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = l }
}

// NewOrchestrator validates plan and checks every stage has a task function
func NewOrchestrator(plan *stage.StagePlan, tasks map[core.TaskID]TaskFunc, opts ...OrchestratorOption) (*Orchestrator, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	for _, s := range plan.Stages {
		if tasks[s.ID] == nil {
			return nil, core.NewInvalidArgumentError("tasks", fmt.Sprintf("no function bound to stage %s", s.ID))
		}
	}
	o := &Orchestrator{
		plan:    plan,
		tasks:   tasks,
		retries: 1,
		logger:  internal.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.retries < 0 {
		o.retries = 0
	}
	return o, nil
}

// Plan returns the executed stage plan
func (o *Orchestrator) Plan() *stage.StagePlan { return o.plan }

// Execute runs the plan to completion and fills manifest. A failed task marks
// every descendant upstream_failed while unrelated branches keep running.
// The returned error is non-nil when any task did not succeed.
func (o *Orchestrator) Execute(ctx context.Context, manifest *run.Manifest, state *RunState) error {
	manifest.SetState(run.RunRunning)
	o.logger.Infow("run started", "run_id", manifest.RunID, "dag_id", o.plan.DAGID)

	pending := make(map[core.TaskID]bool, len(o.plan.Stages))
	for _, s := range o.plan.Stages {
		pending[s.ID] = true
	}
	states := make(map[core.TaskID]run.TaskState, len(o.plan.Stages))

	type outcome struct {
		id    core.TaskID
		state run.TaskState
	}
	done := make(chan outcome)
	var g errgroup.Group
	running := 0

	launchReady := func() {
		for _, s := range o.plan.Stages {
			if !pending[s.ID] || !upstreamsSucceeded(s, states) {
				continue
			}
			delete(pending, s.ID)
			running++
			spec := s
			g.Go(func() error {
				st, err := o.runTask(ctx, spec.ID, manifest, state)
				done <- outcome{id: spec.ID, state: st}
				return err
			})
		}
	}

	launchReady()
	for running > 0 {
		res := <-done
		running--
		states[res.id] = res.state
		if res.state == run.TaskFailed {
			o.blockDescendants(res.id, pending, states, manifest)
		}
		launchReady()
	}
	firstErr := g.Wait()

	manifest.AddMetrics(state.Records()...)
	final := run.RunSuccess
	if len(manifest.Failed()) > 0 {
		final = run.RunFailed
	}
	manifest.SetState(final)
	o.metrics.RunFinished(string(final))
	o.logger.Infow("run finished", "run_id", manifest.RunID, "state", final, "duration", manifest.Duration())

	if failed := manifest.Failed(); len(failed) > 0 {
		return fmt.Errorf("%w: %v: %w", core.ErrUpstreamFailed, failed, firstErr)
	}
	return nil
}

func (o *Orchestrator) blockDescendants(id core.TaskID, pending map[core.TaskID]bool, states map[core.TaskID]run.TaskState, manifest *run.Manifest) {
	for _, d := range o.plan.Descendants(id) {
		if !pending[d] {
			continue
		}
		delete(pending, d)
		states[d] = run.TaskUpstreamFailed
		manifest.MarkFinished(d, run.TaskUpstreamFailed, fmt.Errorf("%w: %s", core.ErrUpstreamFailed, id), nil)
		o.metrics.TaskFinished(string(d), string(run.TaskUpstreamFailed))
		o.logger.Warnw("task skipped", "task", d, "failed_upstream", id)
	}
}

// runTask makes up to retries+1 attempts and records the final state.
// The returned error is the TaskFailed wrapping of the last attempt's error.
func (o *Orchestrator) runTask(ctx context.Context, id core.TaskID, manifest *run.Manifest, state *RunState) (run.TaskState, error) {
	fn := o.tasks[id]
	var lastErr error
	for attempt := 1; attempt <= o.retries+1; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		manifest.MarkRunning(id, attempt)
		o.logger.Infow("task started", "task", id, "attempt", attempt)

		start := time.Now()
		outputs, err := fn(ctx, state)
		elapsed := time.Since(start)
		o.metrics.ObserveTask(string(id), elapsed)

		if err == nil {
			manifest.MarkFinished(id, run.TaskSuccess, nil, outputs)
			o.metrics.TaskFinished(string(id), string(run.TaskSuccess))
			o.logger.Infow("task finished", "task", id, "attempt", attempt, "duration", elapsed, "outputs", outputs)
			return run.TaskSuccess, nil
		}

		lastErr = err
		o.logger.Warnw("task attempt failed", "task", id, "attempt", attempt, "duration", elapsed, "error", err)
		if attempt <= o.retries && !sleepCtx(ctx, o.retryDelay) {
			break
		}
	}

	failure := apperrors.TaskFailed(string(id), lastErr)
	manifest.MarkFinished(id, run.TaskFailed, failure, nil)
	o.metrics.TaskFinished(string(id), string(run.TaskFailed))
	o.logger.Errorw("task failed", "task", id, "error", lastErr)
	return run.TaskFailed, failure
}

func upstreamsSucceeded(s stage.StageSpec, states map[core.TaskID]run.TaskState) bool {
	for _, up := range s.Upstream {
		if states[up] != run.TaskSuccess {
			return false
		}
	}
	return true
}

// sleepCtx waits for d and reports false if ctx ended first
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
