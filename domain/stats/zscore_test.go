package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZScores_Population(t *testing.T) {
	z, deg, err := ZScores([]float64{1, 2, 3, 4})
	require.NoError(t, err)
	assert.False(t, deg)
	// mean 2.5, population std sqrt(1.25)
	s := math.Sqrt(1.25)
	assert.InDeltaSlice(t, []float64{-1.5 / s, -0.5 / s, 0.5 / s, 1.5 / s}, z, 1e-12)
}

func TestZScores_Degenerate(t *testing.T) {
	z, deg, err := ZScores([]float64{5, 5, 5})
	require.NoError(t, err)
	assert.True(t, deg)
	for _, v := range z {
		assert.True(t, math.IsNaN(v))
	}

	z, deg, err = ZScores([]float64{1, math.NaN(), 3})
	require.NoError(t, err)
	assert.True(t, deg)
	assert.True(t, math.IsNaN(z[0]))
}

func TestOutlierMask(t *testing.T) {
	base := make([]float64, 20)
	for i := range base {
		base[i] = float64(i % 2)
	}
	spiked := append([]float64(nil), base...)
	spiked[7] = 100
	constant := make([]float64, 20)

	mask, degenerate, err := OutlierMask([][]float64{base, spiked, constant}, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, degenerate)

	for i, m := range mask {
		assert.Equal(t, i == 7, m, "row %d", i)
	}
}

func TestOutlierMask_LengthMismatch(t *testing.T) {
	_, _, err := OutlierMask([][]float64{{1, 2}, {1}}, 3)
	assert.Error(t, err)
}

func TestPearsonMatrix(t *testing.T) {
	a := []float64{1, 2, 3, 4, math.NaN()}
	b := []float64{2, 4, 6, 8, 1}
	c := []float64{4, 3, 2, 1, 0}
	d := []float64{7, 7, 7, 7, 7}

	m := PearsonMatrix([][]float64{a, b, c, d})
	assert.InDelta(t, 1.0, m[0][0], 1e-12)
	assert.InDelta(t, 1.0, m[0][1], 1e-12, "NaN row is excluded pairwise")
	assert.InDelta(t, -1.0, m[0][2], 1e-12)
	assert.Equal(t, m[1][2], m[2][1])
	assert.True(t, math.IsNaN(m[3][3]))
	assert.True(t, math.IsNaN(m[0][3]))
}
