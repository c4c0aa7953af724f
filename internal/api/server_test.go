package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"batteryflow/app"
	"batteryflow/domain/core"
	"batteryflow/domain/run"
	"batteryflow/domain/stage"
	"batteryflow/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRuns struct {
	plan      *stage.StagePlan
	manifests map[core.RunID]*run.Manifest
	active    bool
	triggered []app.RunParams
}

func newFakeRuns() *fakeRuns {
	return &fakeRuns{plan: stage.BatteryPipelinePlan(), manifests: map[core.RunID]*run.Manifest{}}
}

func (f *fakeRuns) Plan() *stage.StagePlan { return f.plan }

func (f *fakeRuns) Trigger(ctx context.Context, params app.RunParams) (*run.Manifest, error) {
	if f.active {
		return nil, core.ErrRunActive
	}
	f.active = true
	f.triggered = append(f.triggered, params)
	m := run.NewManifest(core.NewRunID(), f.plan, run.NewRunFingerprint(f.plan.Hash(), params.InputPath, params.SampleSize, params.Seed))
	f.manifests[m.RunID] = m
	return m.Snapshot(), nil
}

func (f *fakeRuns) Get(runID core.RunID) (*run.Manifest, error) {
	m, ok := f.manifests[runID]
	if !ok {
		return nil, core.NewNotFoundError("run", runID.String())
	}
	return m.Snapshot(), nil
}

func (f *fakeRuns) Report(runID core.RunID) ([]byte, error) {
	m, err := f.Get(runID)
	if err != nil {
		return nil, err
	}
	return app.RenderReport(m), nil
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeRuns) {
	runs := newFakeRuns()
	reg := prometheus.NewRegistry()
	metrics.NewPipeline(reg).RunFinished("success")
	srv := httptest.NewServer(NewServer(context.Background(), runs, reg, nil).Handler())
	t.Cleanup(srv.Close)
	return srv, runs
}

const dagPath = "/api/v1/dags/battery_anomaly_detection_pipeline"

func TestServer_Health(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_GetDAG(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + dagPath)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var dag DAGResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&dag))
	assert.Equal(t, stage.DAGBatteryPipeline, dag.DAGID)
	assert.Len(t, dag.Tasks, 7)
	assert.Len(t, dag.Edges, 6)
}

func TestServer_UnknownDAG(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/api/v1/dags/other")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_TriggerAndGet(t *testing.T) {
	srv, runs := newTestServer(t)

	body := `{"conf": {"input_path": "data/other.csv", "sample_size": 1000}}`
	resp, err := http.Post(srv.URL+dagPath+"/dagRuns", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var m run.Manifest
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&m))
	assert.Equal(t, run.RunQueued, m.State)
	assert.Equal(t, app.RunParams{InputPath: "data/other.csv", SampleSize: 1000}, runs.triggered[0])

	again, err := http.Post(srv.URL+dagPath+"/dagRuns", "application/json", nil)
	require.NoError(t, err)
	defer again.Body.Close()
	assert.Equal(t, http.StatusConflict, again.StatusCode)

	got, err := http.Get(srv.URL + dagPath + "/dagRuns/" + m.RunID.String())
	require.NoError(t, err)
	defer got.Body.Close()
	assert.Equal(t, http.StatusOK, got.StatusCode)

	report, err := http.Get(srv.URL + dagPath + "/dagRuns/" + m.RunID.String() + "/report")
	require.NoError(t, err)
	defer report.Body.Close()
	assert.Equal(t, http.StatusOK, report.StatusCode)
	assert.Contains(t, report.Header.Get("Content-Type"), "text/html")
}

func TestServer_TriggerBadBody(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Post(srv.URL+dagPath+"/dagRuns", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_UnknownRun(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + dagPath + "/dagRuns/" + core.NewRunID().String())
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_Metrics(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var b strings.Builder
	_, err = io.Copy(&b, resp.Body)
	require.NoError(t, err)
	assert.Contains(t, b.String(), "batteryflow_runs_total")
}
