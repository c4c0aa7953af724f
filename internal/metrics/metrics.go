// Package metrics holds the Prometheus collectors of the pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "batteryflow"

// Pipeline groups every collector the orchestrator and steps report to
type Pipeline struct {
	TaskDuration  *prometheus.HistogramVec
	TaskOutcomes  *prometheus.CounterVec
	FilterRowsIn  *prometheus.GaugeVec
	FilterRowsOut *prometheus.GaugeVec
	LedgerRows    prometheus.Counter
	Runs          *prometheus.CounterVec
}

// NewPipeline creates the collectors and registers them on reg.
// A nil registry leaves them unregistered, which tests use.
func NewPipeline(reg prometheus.Registerer) *Pipeline {
	p := &Pipeline{
		TaskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Wall time of one task attempt in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"task"}),
		TaskOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_outcomes_total",
			Help:      "Terminal task states by task.",
		}, []string{"task", "state"}),
		FilterRowsIn: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "filter_rows_in",
			Help:      "Rows entering an outlier filter in the latest run.",
		}, []string{"filter"}),
		FilterRowsOut: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "filter_rows_out",
			Help:      "Rows kept by an outlier filter in the latest run.",
		}, []string{"filter"}),
		LedgerRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_rows_appended_total",
			Help:      "Metrics records appended to the ledger.",
		}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished pipeline runs by final state.",
		}, []string{"state"}),
	}
	if reg != nil {
		reg.MustRegister(p.TaskDuration, p.TaskOutcomes, p.FilterRowsIn, p.FilterRowsOut, p.LedgerRows, p.Runs)
	}
	return p
}

// ObserveTask records one attempt's duration
func (p *Pipeline) ObserveTask(task string, d time.Duration) {
	if p == nil {
		return
	}
	p.TaskDuration.WithLabelValues(task).Observe(d.Seconds())
}

// TaskFinished counts a terminal task state
func (p *Pipeline) TaskFinished(task, state string) {
	if p == nil {
		return
	}
	p.TaskOutcomes.WithLabelValues(task, state).Inc()
}

// FilterRows sets the in/out row gauges of a filter
func (p *Pipeline) FilterRows(filter string, in, out int) {
	if p == nil {
		return
	}
	p.FilterRowsIn.WithLabelValues(filter).Set(float64(in))
	p.FilterRowsOut.WithLabelValues(filter).Set(float64(out))
}

// LedgerAppended counts one appended record
func (p *Pipeline) LedgerAppended() {
	if p == nil {
		return
	}
	p.LedgerRows.Inc()
}

// RunFinished counts a finished run
func (p *Pipeline) RunFinished(state string) {
	if p == nil {
		return
	}
	p.Runs.WithLabelValues(state).Inc()
}
