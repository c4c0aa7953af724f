package ports

import (
	"context"
	"io"
)

// ArtifactStore persists run artifacts under a key relative to the run's artifact root
type ArtifactStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	// URI returns where a key is stored, for logging and manifests
	URI(key string) string
}
