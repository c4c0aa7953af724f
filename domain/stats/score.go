package stats

import (
	"math"
	"sort"

	"batteryflow/domain/core"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// MeanSquaredError returns the average squared residual
func MeanSquaredError(yTrue, yPred []float64) (float64, error) {
	if len(yTrue) == 0 || len(yTrue) != len(yPred) {
		return 0, core.NewInvalidArgumentError("y", "true and predicted values must be non-empty and of equal length")
	}
	d := floats.Distance(yTrue, yPred, 2)
	return d * d / float64(len(yTrue)), nil
}

// R2Score returns the coefficient of determination. A constant target leaves it undefined.
func R2Score(yTrue, yPred []float64) (float64, error) {
	if len(yTrue) == 0 || len(yTrue) != len(yPred) {
		return 0, core.NewInvalidArgumentError("y", "true and predicted values must be non-empty and of equal length")
	}
	if len(yTrue) < 2 || stat.Variance(yTrue, nil) == 0 {
		return 0, core.NewNumericError("R2", "test target is constant")
	}
	r2 := stat.RSquaredFrom(yPred, yTrue, nil)
	if math.IsNaN(r2) {
		return 0, core.NewNumericError("R2", "not finite")
	}
	return r2, nil
}

// Percentile computes the q-th percentile (0..100) with linear interpolation between closest ranks
func Percentile(values []float64, q float64) (float64, error) {
	if len(values) == 0 {
		return 0, core.NewInvalidArgumentError("values", "empty")
	}
	if q < 0 || q > 100 || math.IsNaN(q) {
		return 0, core.NewInvalidArgumentError("q", "must be within [0, 100]")
	}
	s := append([]float64(nil), values...)
	sort.Float64s(s)

	rank := q / 100 * float64(len(s)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return s[lo], nil
	}
	return s[lo] + (s[hi]-s[lo])*(rank-float64(lo)), nil
}
