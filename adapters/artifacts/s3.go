package artifacts

import (
	"context"
	"fmt"
	"io"
	"strings"

	"batteryflow/domain/core"
	"batteryflow/internal"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config holds connection settings of an S3-compatible store
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// S3Store writes artifacts as objects of one bucket
type S3Store struct {
	mc     *minio.Client
	bucket string
	logger *internal.Logger
}

// NewS3Store creates a MinIO client for cfg
func NewS3Store(cfg S3Config, logger *internal.Logger) (*S3Store, error) {
	if cfg.Endpoint == "" {
		return nil, core.NewInvalidArgumentError("s3 endpoint", "required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, core.NewInvalidArgumentError("s3 credentials", "access key and secret key are required")
	}
	if logger == nil {
		logger = internal.NewNopLogger()
	}

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, core.NewResourceError("s3 client", err)
	}

	bucket := cfg.Bucket
	if bucket == "" {
		bucket = "mlflow-artifacts"
	}
	return &S3Store{mc: mc, bucket: bucket, logger: logger}, nil
}

// EnsureBucket creates the bucket when it does not exist
func (s *S3Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.mc.BucketExists(ctx, s.bucket)
	if err != nil {
		return core.NewResourceError("s3 bucket "+s.bucket, err)
	}
	if !exists {
		if err := s.mc.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return core.NewResourceError("s3 bucket "+s.bucket, err)
		}
		s.logger.Info("[s3] created bucket %s", s.bucket)
	}
	return nil
}

// Put uploads r as object key
func (s *S3Store) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.mc.PutObject(ctx, s.bucket, strings.TrimPrefix(key, "/"), r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return core.NewResourceError(fmt.Sprintf("s3 object %s", key), err)
	}
	return nil
}

// URI returns the s3:// location of key
func (s *S3Store) URI(key string) string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, strings.TrimPrefix(key, "/"))
}
