package stage

import (
	"testing"

	"batteryflow/domain/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatteryPipelinePlan_Structure(t *testing.T) {
	plan := BatteryPipelinePlan()
	require.NoError(t, plan.Validate())
	assert.Len(t, plan.Stages, 7)

	expected := [][2]core.TaskID{
		{TaskLoadData, TaskStratifiedSample},
		{TaskStratifiedSample, TaskPreprocessing},
		{TaskPreprocessing, TaskTrainRawData},
		{TaskPreprocessing, TaskRemoveOutliersZ},
		{TaskRemoveOutliersZ, TaskIsolationForest},
		{TaskIsolationForest, TaskTrainCleanedData},
	}
	assert.ElementsMatch(t, expected, plan.Edges())
}

func TestStagePlan_TopologicalOrder(t *testing.T) {
	order, err := BatteryPipelinePlan().TopologicalOrder()
	require.NoError(t, err)

	pos := make(map[core.TaskID]int)
	for i, id := range order {
		pos[id] = i
	}
	for _, e := range BatteryPipelinePlan().Edges() {
		assert.Less(t, pos[e[0]], pos[e[1]], "%s must run before %s", e[0], e[1])
	}
}

func TestStagePlan_Descendants(t *testing.T) {
	plan := BatteryPipelinePlan()

	assert.Equal(t,
		[]core.TaskID{TaskIsolationForest, TaskTrainCleanedData},
		plan.Descendants(TaskRemoveOutliersZ))
	assert.Empty(t, plan.Descendants(TaskTrainRawData))
	assert.Len(t, plan.Descendants(TaskLoadData), 6)
}

func TestStagePlan_ValidateRejectsBadGraphs(t *testing.T) {
	tests := []struct {
		name   string
		stages []StageSpec
	}{
		{"empty", nil},
		{"duplicate", []StageSpec{{ID: "a"}, {ID: "a"}}},
		{"unknown upstream", []StageSpec{{ID: "a", Upstream: []core.TaskID{"b"}}}},
		{"self loop", []StageSpec{{ID: "a", Upstream: []core.TaskID{"a"}}}},
		{"cycle", []StageSpec{
			{ID: "a", Upstream: []core.TaskID{"c"}},
			{ID: "b", Upstream: []core.TaskID{"a"}},
			{ID: "c", Upstream: []core.TaskID{"b"}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewStagePlan("dag", "", tt.stages).Validate()
			assert.ErrorIs(t, err, core.ErrInvalidArgument)
		})
	}
}

func TestStagePlan_HashDeterministic(t *testing.T) {
	a := BatteryPipelinePlan()
	b := BatteryPipelinePlan()
	// declaration order of stages does not change the hash
	b.Stages[0], b.Stages[1] = b.Stages[1], b.Stages[0]
	assert.Equal(t, a.Hash(), b.Hash())

	b.Stages[0].Upstream = nil
	assert.NotEqual(t, a.Hash(), b.Hash())
}
