package stage

import (
	"encoding/json"
	"fmt"
	"sort"

	"batteryflow/domain/core"
)

// StageKind categorizes stages by function
type StageKind string

const (
	StageKindIngest   StageKind = "ingest"   // loading and sampling
	StageKindAnalysis StageKind = "analysis" // diagnostics only
	StageKindClean    StageKind = "clean"    // outlier removal
	StageKindTrain    StageKind = "train"    // model training and logging
)

// DAGBatteryPipeline names the battery anomaly workflow
const DAGBatteryPipeline core.DAGID = "battery_anomaly_detection_pipeline"

// Predefined task ids
const (
	TaskLoadData         core.TaskID = "load_data"
	TaskStratifiedSample core.TaskID = "stratified_sample"
	TaskPreprocessing    core.TaskID = "data_preprocessing"
	TaskRemoveOutliersZ  core.TaskID = "remove_outliers_zscore"
	TaskIsolationForest  core.TaskID = "clean_with_isolation_forest"
	TaskTrainRawData     core.TaskID = "train_log_model_raw_data"
	TaskTrainCleanedData core.TaskID = "train_log_model_cleaned_data"
)

// StageSpec defines a single task in the plan and the tasks it waits for
type StageSpec struct {
	ID          core.TaskID   `json:"id"`
	Kind        StageKind     `json:"kind"`
	Description string        `json:"description,omitempty"`
	Upstream    []core.TaskID `json:"upstream,omitempty"`
}

// StagePlan is a directed acyclic graph of stages
type StagePlan struct {
	DAGID       core.DAGID  `json:"dag_id"`
	Description string      `json:"description,omitempty"`
	Stages      []StageSpec `json:"stages"`
}

// NewStagePlan creates a new stage plan
func NewStagePlan(dagID core.DAGID, description string, stages []StageSpec) *StagePlan {
	return &StagePlan{DAGID: dagID, Description: description, Stages: stages}
}

// BatteryPipelinePlan returns the fixed seven-task battery workflow
func BatteryPipelinePlan() *StagePlan {
	return NewStagePlan(DAGBatteryPipeline, "Battery anomaly detection pipeline", []StageSpec{
		{ID: TaskLoadData, Kind: StageKindIngest, Description: "Load the battery table"},
		{ID: TaskStratifiedSample, Kind: StageKindIngest, Description: "Stratified sample on cycle_index", Upstream: []core.TaskID{TaskLoadData}},
		{ID: TaskPreprocessing, Kind: StageKindAnalysis, Description: "Null diagnostics and plots", Upstream: []core.TaskID{TaskStratifiedSample}},
		{ID: TaskTrainRawData, Kind: StageKindTrain, Description: "Train models on the raw sample", Upstream: []core.TaskID{TaskPreprocessing}},
		{ID: TaskRemoveOutliersZ, Kind: StageKindClean, Description: "Drop rows with |z| > threshold", Upstream: []core.TaskID{TaskPreprocessing}},
		{ID: TaskIsolationForest, Kind: StageKindClean, Description: "Drop isolation forest anomalies", Upstream: []core.TaskID{TaskRemoveOutliersZ}},
		{ID: TaskTrainCleanedData, Kind: StageKindTrain, Description: "Train models on the cleaned sample", Upstream: []core.TaskID{TaskIsolationForest}},
	})
}

// Hash computes a deterministic hash of the stage plan
func (p *StagePlan) Hash() core.Hash {
	sorted := make([]StageSpec, len(p.Stages))
	copy(sorted, p.Stages)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ID < sorted[j].ID
	})
	for i := range sorted {
		up := append([]core.TaskID(nil), sorted[i].Upstream...)
		sort.Slice(up, func(a, b int) bool { return up[a] < up[b] })
		sorted[i].Upstream = up
		sorted[i].Description = ""
	}

	data, _ := json.Marshal(struct {
		DAGID  core.DAGID  `json:"dag_id"`
		Stages []StageSpec `json:"stages"`
	}{p.DAGID, sorted})
	return core.NewHash(data)
}

// Validate checks ids are unique, upstreams exist, and the graph is acyclic
func (p *StagePlan) Validate() error {
	if len(p.Stages) == 0 {
		return core.NewInvalidArgumentError("stage_plan", "must contain at least one stage")
	}

	seen := make(map[core.TaskID]bool, len(p.Stages))
	for _, s := range p.Stages {
		if s.ID == "" {
			return core.NewInvalidArgumentError("stage", "id cannot be empty")
		}
		if seen[s.ID] {
			return core.NewInvalidArgumentError("stage", "duplicate stage id: "+string(s.ID))
		}
		seen[s.ID] = true
	}
	for _, s := range p.Stages {
		for _, up := range s.Upstream {
			if !seen[up] {
				return core.NewInvalidArgumentError("stage", fmt.Sprintf("%s depends on unknown stage %s", s.ID, up))
			}
			if up == s.ID {
				return core.NewInvalidArgumentError("stage", fmt.Sprintf("%s depends on itself", s.ID))
			}
		}
	}

	if _, err := p.TopologicalOrder(); err != nil {
		return err
	}
	return nil
}

// Get returns the spec of a stage
func (p *StagePlan) Get(id core.TaskID) (StageSpec, bool) {
	for _, s := range p.Stages {
		if s.ID == id {
			return s, true
		}
	}
	return StageSpec{}, false
}

// TopologicalOrder returns stage ids so that every stage follows its upstreams.
// Ties keep declaration order.
func (p *StagePlan) TopologicalOrder() ([]core.TaskID, error) {
	indegree := make(map[core.TaskID]int, len(p.Stages))
	for _, s := range p.Stages {
		indegree[s.ID] = len(s.Upstream)
	}
	downstream := p.downstreamIndex()

	order := make([]core.TaskID, 0, len(p.Stages))
	done := make(map[core.TaskID]bool, len(p.Stages))
	for len(order) < len(p.Stages) {
		progressed := false
		for _, s := range p.Stages {
			if done[s.ID] || indegree[s.ID] > 0 {
				continue
			}
			done[s.ID] = true
			order = append(order, s.ID)
			for _, d := range downstream[s.ID] {
				indegree[d]--
			}
			progressed = true
		}
		if !progressed {
			return nil, core.NewInvalidArgumentError("stage_plan", "dependency cycle detected")
		}
	}
	return order, nil
}

// Downstream returns the stages that list id as an upstream
func (p *StagePlan) Downstream(id core.TaskID) []core.TaskID {
	return p.downstreamIndex()[id]
}

// Descendants returns every stage reachable downstream of id, in declaration order
func (p *StagePlan) Descendants(id core.TaskID) []core.TaskID {
	downstream := p.downstreamIndex()
	reached := make(map[core.TaskID]bool)
	queue := []core.TaskID{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, d := range downstream[cur] {
			if !reached[d] {
				reached[d] = true
				queue = append(queue, d)
			}
		}
	}

	var out []core.TaskID
	for _, s := range p.Stages {
		if reached[s.ID] {
			out = append(out, s.ID)
		}
	}
	return out
}

// Edges returns every (upstream, downstream) pair in declaration order
func (p *StagePlan) Edges() [][2]core.TaskID {
	var edges [][2]core.TaskID
	for _, s := range p.Stages {
		for _, up := range s.Upstream {
			edges = append(edges, [2]core.TaskID{up, s.ID})
		}
	}
	return edges
}

func (p *StagePlan) downstreamIndex() map[core.TaskID][]core.TaskID {
	idx := make(map[core.TaskID][]core.TaskID, len(p.Stages))
	for _, s := range p.Stages {
		for _, up := range s.Upstream {
			idx[up] = append(idx[up], s.ID)
		}
	}
	return idx
}
