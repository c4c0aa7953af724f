package run

import (
	"sync"
	"time"

	"batteryflow/domain/core"
	"batteryflow/domain/metrics"
	"batteryflow/domain/stage"
)

// Manifest is the record of one pipeline run. It is safe for concurrent use.
type Manifest struct {
	mu sync.RWMutex

	RunID       core.RunID                  `json:"run_id"`
	DAGID       core.DAGID                  `json:"dag_id"`
	State       RunState                    `json:"state"`
	Fingerprint RunFingerprint              `json:"fingerprint"`
	Tasks       map[core.TaskID]*TaskResult `json:"tasks"`
	Order       []core.TaskID               `json:"order"`
	Metrics     []metrics.Record            `json:"metrics,omitempty"`
	CreatedAt   core.Timestamp              `json:"created_at"`
	FinishedAt  *core.Timestamp             `json:"finished_at,omitempty"`
}

// NewManifest creates a manifest with every task pending
func NewManifest(runID core.RunID, plan *stage.StagePlan, fp RunFingerprint) *Manifest {
	tasks := make(map[core.TaskID]*TaskResult, len(plan.Stages))
	order := make([]core.TaskID, 0, len(plan.Stages))
	for _, s := range plan.Stages {
		tasks[s.ID] = &TaskResult{TaskID: s.ID, State: TaskPending}
		order = append(order, s.ID)
	}
	return &Manifest{
		RunID:       runID,
		DAGID:       plan.DAGID,
		State:       RunQueued,
		Fingerprint: fp,
		Tasks:       tasks,
		Order:       order,
		CreatedAt:   core.Now(),
	}
}

// Validate checks if the manifest is complete
func (m *Manifest) Validate() error {
	if core.ID(m.RunID).IsEmpty() {
		return core.NewInvalidArgumentError("run_manifest", "run_id cannot be empty")
	}
	if m.DAGID == "" {
		return core.NewInvalidArgumentError("run_manifest", "dag_id cannot be empty")
	}
	if m.Fingerprint.Fingerprint.IsEmpty() {
		return core.NewInvalidArgumentError("run_manifest", "fingerprint cannot be empty")
	}
	return nil
}

// SetState sets the overall run state
func (m *Manifest) SetState(s RunState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.State = s
	if s == RunSuccess || s == RunFailed {
		now := core.Now()
		m.FinishedAt = &now
	}
}

// MarkRunning records the start of an attempt
func (m *Manifest) MarkRunning(id core.TaskID, attempt int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.Tasks[id]
	t.State = TaskRunning
	t.Attempts = attempt
	if t.StartedAt == nil {
		now := core.Now()
		t.StartedAt = &now
	}
}

// MarkFinished records the final outcome of a task
func (m *Manifest) MarkFinished(id core.TaskID, state TaskState, err error, outputs map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.Tasks[id]
	t.State = state
	now := core.Now()
	t.FinishedAt = &now
	if t.StartedAt != nil {
		t.DurationMs = now.Time().Sub(t.StartedAt.Time()).Milliseconds()
	}
	if err != nil {
		t.Error = err.Error()
	}
	if len(outputs) > 0 {
		t.Outputs = outputs
	}
}

// AddMetrics appends ledger records produced during the run
func (m *Manifest) AddMetrics(records ...metrics.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Metrics = append(m.Metrics, records...)
}

// Task returns a copy of a task result
func (m *Manifest) Task(id core.TaskID) (TaskResult, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.Tasks[id]
	if !ok {
		return TaskResult{}, false
	}
	return *t, true
}

// Snapshot returns a deep copy that can be marshalled without holding the lock
func (m *Manifest) Snapshot() *Manifest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tasks := make(map[core.TaskID]*TaskResult, len(m.Tasks))
	for id, t := range m.Tasks {
		cp := *t
		tasks[id] = &cp
	}
	return &Manifest{
		RunID:       m.RunID,
		DAGID:       m.DAGID,
		State:       m.State,
		Fingerprint: m.Fingerprint,
		Tasks:       tasks,
		Order:       append([]core.TaskID(nil), m.Order...),
		Metrics:     append([]metrics.Record(nil), m.Metrics...),
		CreatedAt:   m.CreatedAt,
		FinishedAt:  m.FinishedAt,
	}
}

// Failed returns the ids of tasks that failed or were blocked
func (m *Manifest) Failed() []core.TaskID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []core.TaskID
	for _, id := range m.Order {
		if s := m.Tasks[id].State; s == TaskFailed || s == TaskUpstreamFailed {
			out = append(out, id)
		}
	}
	return out
}

// Duration returns the wall time of a finished run
func (m *Manifest) Duration() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FinishedAt == nil {
		return 0
	}
	return m.FinishedAt.Time().Sub(m.CreatedAt.Time())
}
