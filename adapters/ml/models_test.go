package ml

import (
	"encoding/json"
	"math"
	"math/rand"
	"testing"

	"batteryflow/domain/core"
	"batteryflow/domain/stats"
	"batteryflow/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func column(xs ...float64) [][]float64 {
	X := make([][]float64, len(xs))
	for i, x := range xs {
		X[i] = []float64{x}
	}
	return X
}

func curve(n int, f func(float64) float64) ([][]float64, []float64) {
	X := make([][]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		x := float64(i) / float64(n)
		X[i] = []float64{x}
		y[i] = f(x)
	}
	return X, y
}

func r2(t *testing.T, m ports.Regressor, X [][]float64, y []float64) float64 {
	t.Helper()
	pred, err := m.Predict(X)
	require.NoError(t, err)
	score, err := stats.R2Score(y, pred)
	require.NoError(t, err)
	return score
}

func TestLinearRegression_SingleFeature(t *testing.T) {
	lr := NewLinearRegression()
	require.NoError(t, lr.Fit(column(0, 1, 2, 3), []float64{1, 3, 5, 7}))
	assert.InDelta(t, 1.0, lr.Intercept, 1e-9)
	assert.InDelta(t, 2.0, lr.Coefficients[0], 1e-9)

	pred, err := lr.Predict(column(10))
	require.NoError(t, err)
	assert.InDelta(t, 21.0, pred[0], 1e-9)
}

func TestLinearRegression_MultipleFeatures(t *testing.T) {
	rnd := rand.New(rand.NewSource(5))
	X := make([][]float64, 50)
	y := make([]float64, 50)
	for i := range X {
		a, b := rnd.Float64(), rnd.Float64()
		X[i] = []float64{a, b}
		y[i] = 1 + 2*a + 3*b
	}
	lr := NewLinearRegression()
	require.NoError(t, lr.Fit(X, y))
	assert.InDelta(t, 1.0, lr.Intercept, 1e-9)
	assert.InDelta(t, 2.0, lr.Coefficients[0], 1e-9)
	assert.InDelta(t, 3.0, lr.Coefficients[1], 1e-9)
}

func TestLinearRegression_ConstantFeature(t *testing.T) {
	err := NewLinearRegression().Fit(column(2, 2, 2), []float64{1, 2, 3})
	assert.True(t, core.IsNumericError(err))
}

func TestDecisionTree_FitsTrainingDataExactly(t *testing.T) {
	X, y := curve(64, func(x float64) float64 { return math.Sin(6 * x) })
	dt := NewDecisionTree()
	require.NoError(t, dt.Fit(X, y))

	pred, err := dt.Predict(X)
	require.NoError(t, err)
	for i := range y {
		assert.InDelta(t, y[i], pred[i], 1e-12)
	}
	assert.Greater(t, dt.Depth(), 3)
}

func TestDecisionTree_MaxDepth(t *testing.T) {
	X, y := curve(64, func(x float64) float64 { return x })
	dt := NewDecisionTree(WithTreeMaxDepth(2))
	require.NoError(t, dt.Fit(X, y))
	assert.Equal(t, 2, dt.Depth())
}

func TestRandomForest_FitsSmoothCurve(t *testing.T) {
	X, y := curve(200, func(x float64) float64 { return x * x })
	rf := NewRandomForest(WithNEstimators(20))
	require.NoError(t, rf.Fit(X, y))
	assert.Greater(t, r2(t, rf, X, y), 0.95)

	again := NewRandomForest(WithNEstimators(20))
	require.NoError(t, again.Fit(X, y))
	a, _ := rf.Predict(X)
	b, _ := again.Predict(X)
	assert.Equal(t, a, b, "same seed gives the same forest")
}

func TestGradientBoosting_FitsSmoothCurve(t *testing.T) {
	X, y := curve(200, func(x float64) float64 { return math.Sin(3 * x) })
	gb := NewGradientBoosting()
	require.NoError(t, gb.Fit(X, y))
	assert.Greater(t, r2(t, gb, X, y), 0.99)
	assert.Len(t, gb.trees, 100)
}

func TestGradientBoosting_ConstantTarget(t *testing.T) {
	gb := NewGradientBoosting(WithRounds(5))
	require.NoError(t, gb.Fit(column(1, 2, 3), []float64{4, 4, 4}))
	pred, err := gb.Predict(column(10))
	require.NoError(t, err)
	assert.InDelta(t, 4.0, pred[0], 1e-12)
}

func TestRegressors_Errors(t *testing.T) {
	models := []ports.Regressor{NewLinearRegression(), NewDecisionTree(), NewRandomForest(WithNEstimators(2)), NewGradientBoosting(WithRounds(2))}
	for _, m := range models {
		_, err := m.Predict(column(1))
		assert.ErrorIs(t, err, core.ErrInvalidArgument, "%T predict before fit", m)

		assert.ErrorIs(t, m.Fit(nil, nil), core.ErrInvalidArgument, "%T empty fit", m)
		assert.True(t, core.IsDataFormatError(m.Fit(column(1, math.NaN()), []float64{1, 2})), "%T NaN feature", m)
	}
}

func TestRegressors_MarshalFittedState(t *testing.T) {
	X, y := curve(20, func(x float64) float64 { return 3 * x })
	models := map[ports.ModelFamily]ports.Regressor{
		ports.FamilyLinear:   NewLinearRegression(),
		ports.FamilyTree:     NewDecisionTree(),
		ports.FamilyForest:   NewRandomForest(WithNEstimators(3)),
		ports.FamilyBoosting: NewGradientBoosting(WithRounds(3)),
	}
	for family, m := range models {
		require.NoError(t, m.Fit(X, y))
		assert.Equal(t, family, m.Family())

		data, err := json.Marshal(m)
		require.NoError(t, err)
		var decoded map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.NotEmpty(t, decoded, "%s", family)
	}
}
