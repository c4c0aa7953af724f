package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipeline_Collectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPipeline(reg)

	p.TaskFinished("load_data", "success")
	p.TaskFinished("load_data", "success")
	p.TaskFinished("stratified_sample", "failed")
	p.FilterRows("zscore", 200, 190)
	p.LedgerAppended()
	p.RunFinished("success")
	p.ObserveTask("load_data", 20*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(p.TaskOutcomes.WithLabelValues("load_data", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.TaskOutcomes.WithLabelValues("stratified_sample", "failed")))
	assert.Equal(t, 200.0, testutil.ToFloat64(p.FilterRowsIn.WithLabelValues("zscore")))
	assert.Equal(t, 190.0, testutil.ToFloat64(p.FilterRowsOut.WithLabelValues("zscore")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.LedgerRows))
	assert.Equal(t, 1, testutil.CollectAndCount(p.TaskDuration))

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Greater(t, n, 0)
}

func TestPipeline_NilIsNoop(t *testing.T) {
	var p *Pipeline
	assert.NotPanics(t, func() {
		p.TaskFinished("x", "success")
		p.FilterRows("zscore", 1, 1)
		p.LedgerAppended()
		p.RunFinished("failed")
		p.ObserveTask("x", time.Second)
	})
}
