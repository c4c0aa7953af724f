package metrics

import (
	"fmt"
	"math"
	"strconv"

	"batteryflow/domain/core"
)

// Dataset labels used by the two training branches
const (
	LabelRaw     = "Raw Data"
	LabelCleaned = "Cleaned Data"
)

// Metric names as logged to the tracker and the ledger header
const (
	NameMSE        = "MSE"
	NameRMSE       = "RMSE"
	NameR2         = "R2"
	NameAdjustedR2 = "Adjusted_R2"
)

// LedgerHeader is the column order of the metrics ledger
var LedgerHeader = []string{"Model", "Dataset", NameMSE, NameRMSE, NameR2, NameAdjustedR2}

// Record holds the evaluation of one model on one dataset label
type Record struct {
	Model      string  `json:"model" db:"model"`
	Dataset    string  `json:"dataset" db:"dataset"`
	MSE        float64 `json:"mse" db:"mse"`
	RMSE       float64 `json:"rmse" db:"rmse"`
	R2         float64 `json:"r2" db:"r2"`
	AdjustedR2 float64 `json:"adjusted_r2" db:"adjusted_r2"`
}

// Values returns the metrics keyed by their logged names
func (r Record) Values() map[string]float64 {
	return map[string]float64{
		NameMSE:        r.MSE,
		NameRMSE:       r.RMSE,
		NameR2:         r.R2,
		NameAdjustedR2: r.AdjustedR2,
	}
}

// CSVRow formats the record in ledger column order
func (r Record) CSVRow() []string {
	return []string{
		r.Model,
		r.Dataset,
		strconv.FormatFloat(r.MSE, 'g', -1, 64),
		strconv.FormatFloat(r.RMSE, 'g', -1, 64),
		strconv.FormatFloat(r.R2, 'g', -1, 64),
		strconv.FormatFloat(r.AdjustedR2, 'g', -1, 64),
	}
}

// Finite reports whether every metric is a finite number
func (r Record) Finite() bool {
	for _, v := range r.Values() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// AdjustedR2 penalizes r2 for k predictors over n samples.
// It is undefined when n-k-1 <= 0.
func AdjustedR2(r2 float64, n, k int) (float64, error) {
	dof := n - k - 1
	if dof <= 0 {
		return math.NaN(), fmt.Errorf("%w: n=%d k=%d", core.ErrUndefinedAdjusted, n, k)
	}
	return 1 - (1-r2)*float64(n-1)/float64(dof), nil
}

// NewRecord derives RMSE and adjusted R2 from mse and r2
func NewRecord(model, dataset string, mse, r2 float64, n, k int) (Record, error) {
	adj, err := AdjustedR2(r2, n, k)
	if err != nil {
		return Record{}, err
	}
	return Record{
		Model:      model,
		Dataset:    dataset,
		MSE:        mse,
		RMSE:       math.Sqrt(mse),
		R2:         r2,
		AdjustedR2: adj,
	}, nil
}
