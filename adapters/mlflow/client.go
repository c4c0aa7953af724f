// Package mlflow talks to an MLflow tracking server over its REST 2.0 API.
package mlflow

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"batteryflow/domain/core"
	"batteryflow/internal/errors"
)

const apiPrefix = "/api/2.0/mlflow"

// Error codes returned by the tracking server
const (
	codeNotFound      = "RESOURCE_DOES_NOT_EXIST"
	codeAlreadyExists = "RESOURCE_ALREADY_EXISTS"
)

// APIError is an error body returned by the tracking server
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"error_code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mlflow http %d %s: %s", e.Status, e.Code, e.Message)
}

// Is maps a missing resource onto core.ErrNotFound
func (e *APIError) Is(target error) bool {
	return target == core.ErrNotFound && e.Code == codeNotFound
}

// Client is a minimal MLflow REST client
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClient creates a client for the tracking server at baseURL
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// Experiment is the subset of experiment fields the pipeline uses
type Experiment struct {
	ID               string `json:"experiment_id"`
	Name             string `json:"name"`
	ArtifactLocation string `json:"artifact_location"`
	LifecycleStage   string `json:"lifecycle_stage"`
}

// RunInfo is the subset of run info fields the pipeline uses
type RunInfo struct {
	RunID        string `json:"run_id"`
	ExperimentID string `json:"experiment_id"`
	RunName      string `json:"run_name"`
	Status       string `json:"status"`
	ArtifactURI  string `json:"artifact_uri"`
}

type tag struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// GetExperimentByName returns core.ErrNotFound when no experiment has that name
func (c *Client) GetExperimentByName(ctx context.Context, name string) (*Experiment, error) {
	var resp struct {
		Experiment Experiment `json:"experiment"`
	}
	q := url.Values{"experiment_name": {name}}
	if err := c.do(ctx, http.MethodGet, apiPrefix+"/experiments/get-by-name?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Experiment, nil
}

// CreateExperiment creates an experiment and returns its id
func (c *Client) CreateExperiment(ctx context.Context, name string) (string, error) {
	var resp struct {
		ExperimentID string `json:"experiment_id"`
	}
	if err := c.do(ctx, http.MethodPost, apiPrefix+"/experiments/create", map[string]string{"name": name}, &resp); err != nil {
		return "", err
	}
	return resp.ExperimentID, nil
}

// EnsureExperiment returns the id of the named experiment, creating it when missing
func (c *Client) EnsureExperiment(ctx context.Context, name string) (string, error) {
	exp, err := c.GetExperimentByName(ctx, name)
	if err == nil {
		return exp.ID, nil
	}
	if !core.IsNotFoundError(err) {
		return "", err
	}

	id, err := c.CreateExperiment(ctx, name)
	var apiErr *APIError
	if err != nil && stderrors.As(err, &apiErr) && apiErr.Code == codeAlreadyExists {
		// created concurrently by another run
		exp, err := c.GetExperimentByName(ctx, name)
		if err != nil {
			return "", err
		}
		return exp.ID, nil
	}
	return id, err
}

// CreateRun starts a run in an experiment
func (c *Client) CreateRun(ctx context.Context, experimentID, runName string, start time.Time) (*RunInfo, error) {
	req := struct {
		ExperimentID string `json:"experiment_id"`
		RunName      string `json:"run_name"`
		StartTime    int64  `json:"start_time"`
		Tags         []tag  `json:"tags"`
	}{experimentID, runName, start.UnixMilli(), []tag{{Key: "mlflow.runName", Value: runName}}}

	var resp struct {
		Run struct {
			Info RunInfo `json:"info"`
		} `json:"run"`
	}
	if err := c.do(ctx, http.MethodPost, apiPrefix+"/runs/create", req, &resp); err != nil {
		return nil, err
	}
	return &resp.Run.Info, nil
}

// SetTag sets a run tag
func (c *Client) SetTag(ctx context.Context, runID, key, value string) error {
	return c.do(ctx, http.MethodPost, apiPrefix+"/runs/set-tag", map[string]string{"run_id": runID, "key": key, "value": value}, nil)
}

// LogParam logs a run parameter
func (c *Client) LogParam(ctx context.Context, runID, key, value string) error {
	return c.do(ctx, http.MethodPost, apiPrefix+"/runs/log-parameter", map[string]string{"run_id": runID, "key": key, "value": value}, nil)
}

// LogMetric logs one metric value at step 0
func (c *Client) LogMetric(ctx context.Context, runID, key string, value float64, ts time.Time) error {
	req := struct {
		RunID     string  `json:"run_id"`
		Key       string  `json:"key"`
		Value     float64 `json:"value"`
		Timestamp int64   `json:"timestamp"`
		Step      int64   `json:"step"`
	}{runID, key, value, ts.UnixMilli(), 0}
	return c.do(ctx, http.MethodPost, apiPrefix+"/runs/log-metric", req, nil)
}

// UpdateRun sets the terminal status and end time of a run
func (c *Client) UpdateRun(ctx context.Context, runID, status string, end time.Time) error {
	req := struct {
		RunID   string `json:"run_id"`
		Status  string `json:"status"`
		EndTime int64  `json:"end_time"`
	}{runID, status, end.UnixMilli()}
	return c.do(ctx, http.MethodPost, apiPrefix+"/runs/update", req, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "marshal mlflow request")
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "build mlflow request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return errors.ExternalServiceError("mlflow", core.NewResourceError(c.BaseURL, err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.ExternalServiceError("mlflow", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if jsonErr := json.Unmarshal(raw, apiErr); jsonErr != nil || apiErr.Code == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return errors.ExternalServiceError("mlflow", apiErr)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.ExternalServiceError("mlflow", fmt.Errorf("unmarshal response: %w", err))
	}
	return nil
}
