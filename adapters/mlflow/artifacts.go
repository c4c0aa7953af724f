package mlflow

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"batteryflow/domain/core"
	"batteryflow/internal/errors"
)

const artifactsPrefix = "/api/2.0/mlflow-artifacts/artifacts/"

// ArtifactStore uploads artifacts through the tracking server's artifact proxy
type ArtifactStore struct {
	client *Client
}

// NewArtifactStore creates a proxied artifact store on the client's server
func NewArtifactStore(client *Client) *ArtifactStore {
	return &ArtifactStore{client: client}
}

// Put sends r with an HTTP PUT to the proxy path of key
func (s *ArtifactStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.client.BaseURL+artifactsPrefix+escapePath(key), r)
	if err != nil {
		return errors.Wrap(err, "build artifact request")
	}
	req.ContentLength = size
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := s.client.HTTP.Do(req)
	if err != nil {
		return errors.ExternalServiceError("mlflow artifacts", core.NewResourceError(key, err))
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errors.ExternalServiceError("mlflow artifacts",
			core.NewResourceError(key, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))))
	}
	return nil
}

// URI returns the mlflow-artifacts URI of key
func (s *ArtifactStore) URI(key string) string {
	return "mlflow-artifacts:/" + strings.TrimPrefix(key, "/")
}

func escapePath(key string) string {
	parts := strings.Split(strings.TrimPrefix(key, "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
