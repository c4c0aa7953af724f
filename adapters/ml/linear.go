package ml

import (
	"encoding/json"
	"math"

	"batteryflow/domain/core"
	"batteryflow/ports"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// LinearRegression is ordinary least squares with an intercept
type LinearRegression struct {
	Intercept    float64
	Coefficients []float64
}

// NewLinearRegression returns an unfitted OLS model
func NewLinearRegression() *LinearRegression {
	return &LinearRegression{}
}

// Fit solves the least squares problem. A single feature uses the closed form,
// wider inputs a QR solve of the design matrix with a leading ones column.
func (lr *LinearRegression) Fit(X [][]float64, y []float64) error {
	p, err := checkXY("linear_regression", X, y)
	if err != nil {
		return err
	}

	if p == 1 {
		x := make([]float64, len(X))
		for i, row := range X {
			x[i] = row[0]
		}
		if len(x) < 2 || stat.Variance(x, nil) == 0 {
			return core.NewNumericError("linear_regression", "feature has zero variance")
		}
		alpha, beta := stat.LinearRegression(x, y, nil, false)
		if math.IsNaN(alpha) || math.IsNaN(beta) {
			return core.NewNumericError("linear_regression", "coefficients are not finite")
		}
		lr.Intercept, lr.Coefficients = alpha, []float64{beta}
		return nil
	}

	n := len(X)
	if n <= p {
		return core.NewNumericError("linear_regression", "fewer rows than parameters")
	}
	design := mat.NewDense(n, p+1, nil)
	for i, row := range X {
		design.Set(i, 0, 1)
		for j, v := range row {
			design.Set(i, j+1, v)
		}
	}
	var qr mat.QR
	qr.Factorize(design)
	var beta mat.VecDense
	if err := qr.SolveVecTo(&beta, false, mat.NewVecDense(n, append([]float64(nil), y...))); err != nil {
		return core.NewNumericError("linear_regression", err.Error())
	}

	lr.Intercept = beta.AtVec(0)
	lr.Coefficients = make([]float64, p)
	for j := range lr.Coefficients {
		lr.Coefficients[j] = beta.AtVec(j + 1)
	}
	return nil
}

// Predict evaluates the fitted hyperplane
func (lr *LinearRegression) Predict(X [][]float64) ([]float64, error) {
	if err := checkFitted("linear_regression", lr.Coefficients != nil, len(lr.Coefficients), X); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i, x := range X {
		s := lr.Intercept
		for j, c := range lr.Coefficients {
			s += c * x[j]
		}
		out[i] = s
	}
	return out, nil
}

// Family implements ports.Model
func (lr *LinearRegression) Family() ports.ModelFamily { return ports.FamilyLinear }

// MarshalJSON encodes intercept and coefficients
func (lr *LinearRegression) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Intercept    float64   `json:"intercept"`
		Coefficients []float64 `json:"coefficients"`
	}{lr.Intercept, lr.Coefficients})
}
