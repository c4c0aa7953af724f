package ports

// Regressor is a supervised estimator with a continuous target
type Regressor interface {
	Model
	Fit(X [][]float64, y []float64) error
	Predict(X [][]float64) ([]float64, error)
}
