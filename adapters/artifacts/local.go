// Package artifacts stores run artifacts on the local disk or an S3-compatible object store.
package artifacts

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"batteryflow/domain/core"
)

// LocalStore writes artifacts below a root directory
type LocalStore struct {
	root string
}

// NewLocalStore creates a store rooted at dir
func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{root: dir}
}

// Put copies r to root/key through a temp file so readers never see a partial artifact
func (s *LocalStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dst, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return core.NewResourceError(dst, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".artifact-*")
	if err != nil {
		return core.NewResourceError(dst, err)
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return core.NewResourceError(dst, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return core.NewResourceError(dst, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return core.NewResourceError(dst, err)
	}
	return nil
}

// URI returns the absolute file URI of key
func (s *LocalStore) URI(key string) string {
	p, err := s.path(key)
	if err != nil {
		return ""
	}
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	return "file://" + filepath.ToSlash(p)
}

func (s *LocalStore) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", core.NewInvalidArgumentError("artifact key", key)
	}
	return filepath.Join(s.root, clean), nil
}
