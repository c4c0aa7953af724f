// Package ml holds the regression estimators and the isolation forest used by the pipeline.
package ml

import (
	"fmt"
	"math"

	"batteryflow/domain/core"
)

// checkXY validates a training set and returns its feature count
func checkXY(model string, X [][]float64, y []float64) (int, error) {
	if len(X) == 0 {
		return 0, core.NewInvalidArgumentError(model, "empty training set")
	}
	if len(y) != len(X) {
		return 0, core.NewInvalidArgumentError(model, fmt.Sprintf("X has %d rows but y has %d", len(X), len(y)))
	}
	p, err := checkX(model, X)
	if err != nil {
		return 0, err
	}
	for i, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, core.NewDataFormatError(model, fmt.Sprintf("target row %d is not finite", i))
		}
	}
	return p, nil
}

// checkX validates a feature matrix: rectangular, at least one column, finite
func checkX(model string, X [][]float64) (int, error) {
	if len(X) == 0 {
		return 0, nil
	}
	p := len(X[0])
	if p == 0 {
		return 0, core.NewInvalidArgumentError(model, "no features")
	}
	for i, row := range X {
		if len(row) != p {
			return 0, core.NewInvalidArgumentError(model, fmt.Sprintf("row %d has %d features, expected %d", i, len(row), p))
		}
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return 0, core.NewDataFormatError(model, fmt.Sprintf("feature row %d is not finite", i))
			}
		}
	}
	return p, nil
}

func checkFitted(model string, fitted bool, nFeatures int, X [][]float64) error {
	if !fitted {
		return core.NewInvalidArgumentError(model, "model is not fitted")
	}
	p, err := checkX(model, X)
	if err != nil {
		return err
	}
	if len(X) > 0 && p != nFeatures {
		return core.NewInvalidArgumentError(model, fmt.Sprintf("fitted on %d features, got %d", nFeatures, p))
	}
	return nil
}
