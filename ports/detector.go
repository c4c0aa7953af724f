package ports

// OutlierDetector fits on a feature matrix and labels the same rows 1 (inlier) or -1 (outlier)
type OutlierDetector interface {
	FitPredict(X [][]float64) (labels []int, scores []float64, err error)
}
