package app

import (
	"sync"

	"batteryflow/domain/core"
	"batteryflow/domain/dataset"
	"batteryflow/domain/metrics"
)

// Handoff keys for tables passed between tasks
const (
	KeyFull    = "df"
	KeySample  = "strat_sample"
	KeyZClean  = "cleaned_df"
	KeyCleaned = "final_df"
)

// RunParams are the per-run inputs every task can read
type RunParams struct {
	InputPath  string `json:"input_path"`
	SampleSize int    `json:"sample_size"`
	Seed       int64  `json:"seed"`
}

// RunState carries intermediate tables between the tasks of one run.
// It is created per run and dropped when the run ends.
type RunState struct {
	Params RunParams

	mu      sync.RWMutex
	frames  map[string]*dataset.Frame
	records []metrics.Record
	reports []FilterReport
}

// NewRunState creates an empty handoff store
func NewRunState(params RunParams) *RunState {
	return &RunState{
		Params: params,
		frames: make(map[string]*dataset.Frame),
	}
}

// Put stores a table under key, replacing any earlier value
func (s *RunState) Put(key string, frame *dataset.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames[key] = frame
}

// Frame returns the table stored under key
func (s *RunState) Frame(key string) (*dataset.Frame, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.frames[key]
	if !ok {
		return nil, core.NewNotFoundError("handoff table", key)
	}
	return f, nil
}

// AddRecords collects ledger rows produced by a training task
func (s *RunState) AddRecords(records ...metrics.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records...)
}

// Records returns the collected ledger rows
func (s *RunState) Records() []metrics.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]metrics.Record(nil), s.records...)
}

// AddReport collects an outlier filter report
func (s *RunState) AddReport(r FilterReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, r)
}

// Reports returns the collected filter reports
func (s *RunState) Reports() []FilterReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]FilterReport(nil), s.reports...)
}
