package stats

import (
	"math"

	"batteryflow/domain/core"

	mstats "github.com/montanaflynn/stats"
)

// ZScores standardizes values with the population standard deviation.
// A column holding a NaN, or having zero variance, yields all-NaN scores and degenerate=true.
func ZScores(values []float64) (z []float64, degenerate bool, err error) {
	if len(values) == 0 {
		return nil, false, core.NewInvalidArgumentError("values", "empty")
	}
	z = make([]float64, len(values))

	mean, err := mstats.Mean(values)
	if err != nil {
		return nil, false, core.NewNumericError("mean", err.Error())
	}
	std, err := mstats.StandardDeviationPopulation(values)
	if err != nil {
		return nil, false, core.NewNumericError("standard deviation", err.Error())
	}
	if math.IsNaN(mean) || math.IsNaN(std) || std == 0 {
		for i := range z {
			z[i] = math.NaN()
		}
		return z, true, nil
	}

	for i, v := range values {
		z[i] = (v - mean) / std
	}
	return z, false, nil
}

// OutlierMask marks rows where any column has |z| > threshold.
// NaN scores never mark a row. The indices of degenerate columns are returned alongside.
func OutlierMask(columns [][]float64, threshold float64) (outlier []bool, degenerate []int, err error) {
	if len(columns) == 0 {
		return nil, nil, core.NewInvalidArgumentError("columns", "no feature columns")
	}
	n := len(columns[0])
	outlier = make([]bool, n)
	for j, col := range columns {
		if len(col) != n {
			return nil, nil, core.NewInvalidArgumentError("columns", "columns differ in length")
		}
		if n == 0 {
			continue
		}
		z, deg, err := ZScores(col)
		if err != nil {
			return nil, nil, err
		}
		if deg {
			degenerate = append(degenerate, j)
		}
		for i, v := range z {
			if math.Abs(v) > threshold {
				outlier[i] = true
			}
		}
	}
	return outlier, degenerate, nil
}
