package stats

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// PearsonMatrix returns pairwise Pearson correlations between columns, each pair computed
// over the rows where both values are present. Pairs with fewer than two such rows or a
// constant side are NaN.
func PearsonMatrix(columns [][]float64) [][]float64 {
	k := len(columns)
	out := make([][]float64, k)
	for i := range out {
		out[i] = make([]float64, k)
	}
	for i := 0; i < k; i++ {
		for j := i; j < k; j++ {
			r := pairwiseCorrelation(columns[i], columns[j])
			out[i][j], out[j][i] = r, r
		}
	}
	return out
}

func pairwiseCorrelation(a, b []float64) float64 {
	x := make([]float64, 0, len(a))
	y := make([]float64, 0, len(b))
	for i := range a {
		if math.IsNaN(a[i]) || math.IsNaN(b[i]) {
			continue
		}
		x = append(x, a[i])
		y = append(y, b[i])
	}
	if len(x) < 2 {
		return math.NaN()
	}
	if stat.Variance(x, nil) == 0 || stat.Variance(y, nil) == 0 {
		return math.NaN()
	}
	return stat.Correlation(x, y, nil)
}
