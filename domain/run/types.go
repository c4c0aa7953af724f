package run

import (
	"fmt"

	"batteryflow/domain/core"
)

// TaskState is the lifecycle state of one task within a run
type TaskState string

const (
	TaskPending        TaskState = "pending"
	TaskRunning        TaskState = "running"
	TaskSuccess        TaskState = "success"
	TaskFailed         TaskState = "failed"
	TaskUpstreamFailed TaskState = "upstream_failed"
)

// Terminal reports whether the state is final
func (s TaskState) Terminal() bool {
	return s == TaskSuccess || s == TaskFailed || s == TaskUpstreamFailed
}

// RunState is the overall state of a pipeline run
type RunState string

const (
	RunQueued  RunState = "queued"
	RunRunning RunState = "running"
	RunSuccess RunState = "success"
	RunFailed  RunState = "failed"
)

// RunFingerprint ensures deterministic replay
type RunFingerprint struct {
	PlanHash    core.Hash `json:"plan_hash"`
	InputPath   string    `json:"input_path"`
	SampleSize  int       `json:"sample_size"`
	Seed        int64     `json:"seed"`
	Fingerprint core.Hash `json:"fingerprint"`
}

// NewRunFingerprint creates a fingerprint from determinism parameters
func NewRunFingerprint(planHash core.Hash, inputPath string, sampleSize int, seed int64) RunFingerprint {
	data := fmt.Sprintf("plan:%s|input:%s|sample:%d|seed:%d", planHash, inputPath, sampleSize, seed)
	return RunFingerprint{
		PlanHash:    planHash,
		InputPath:   inputPath,
		SampleSize:  sampleSize,
		Seed:        seed,
		Fingerprint: core.NewHash([]byte(data)),
	}
}

// TaskResult records the outcome of a task
type TaskResult struct {
	TaskID     core.TaskID       `json:"task_id"`
	State      TaskState         `json:"state"`
	Attempts   int               `json:"attempts"`
	StartedAt  *core.Timestamp   `json:"started_at,omitempty"`
	FinishedAt *core.Timestamp   `json:"finished_at,omitempty"`
	DurationMs int64             `json:"duration_ms"`
	Error      string            `json:"error,omitempty"`
	Outputs    map[string]string `json:"outputs,omitempty"`
}
