package stats

import (
	"math"
	"testing"

	"batteryflow/domain/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeanSquaredError(t *testing.T) {
	mse, err := MeanSquaredError([]float64{1, 2, 3}, []float64{1, 2, 5})
	require.NoError(t, err)
	assert.InDelta(t, 4.0/3.0, mse, 1e-12)

	_, err = MeanSquaredError(nil, nil)
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
}

func TestR2Score(t *testing.T) {
	r2, err := R2Score([]float64{1, 2, 3, 4}, []float64{1, 2, 3, 4})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, r2, 1e-12)

	r2, err = R2Score([]float64{1, 2, 3, 4}, []float64{2.5, 2.5, 2.5, 2.5})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, r2, 1e-12)

	_, err = R2Score([]float64{3, 3, 3}, []float64{1, 2, 3})
	assert.True(t, core.IsNumericError(err))
}

func TestPercentile(t *testing.T) {
	v := []float64{4, 1, 3, 2}
	tests := []struct {
		q    float64
		want float64
	}{
		{0, 1},
		{50, 2.5},
		{100, 4},
		{5, 1.15},
	}
	for _, tt := range tests {
		got, err := Percentile(v, tt.q)
		require.NoError(t, err)
		assert.InDelta(t, tt.want, got, 1e-12, "q=%v", tt.q)
	}
	assert.Equal(t, []float64{4, 1, 3, 2}, v, "input is not reordered")

	_, err := Percentile(nil, 5)
	assert.Error(t, err)
	_, err = Percentile(v, math.NaN())
	assert.Error(t, err)
}
