package loader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/Adithya-Monish-Kumar-K/contextsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/contextsearch/pkg/resilience"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Source yields the raw bytes of one document.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
	// Name identifies the document in logs and suffix-based codec detection.
	Name() string
}

// FileSource reads a document from the local filesystem.
type FileSource struct {
	Path string
}

func (s FileSource) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.Open(s.Path)
}

func (s FileSource) Name() string {
	return s.Path
}

// ObjectSource reads a document from MinIO or any S3-compatible store.
type ObjectSource struct {
	client *minio.Client
	bucket string
	object string
	retry  resilience.RetryConfig
	logger *slog.Logger
}

// NewObjectSource builds a client for the configured endpoint. No request is
// made until Open.
func NewObjectSource(cfg config.StorageConfig, bucket, object string) (*ObjectSource, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating object storage client for %s: %w", cfg.Endpoint, err)
	}
	return &ObjectSource{
		client: client,
		bucket: bucket,
		object: object,
		retry: resilience.RetryConfig{
			MaxAttempts:  4,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     3 * time.Second,
			Retryable:    isTransient,
		},
		logger: slog.Default().With("component", "object-source", "bucket", bucket, "object", object),
	}, nil
}

// Open stats the object, retrying transient failures, then streams it.
// A missing bucket or key fails immediately.
func (s *ObjectSource) Open(ctx context.Context) (io.ReadCloser, error) {
	var info minio.ObjectInfo
	err := resilience.Retry(ctx, "stat "+s.Name(), s.retry, func(ctx context.Context) error {
		var statErr error
		info, statErr = s.client.StatObject(ctx, s.bucket, s.object, minio.StatObjectOptions{})
		return statErr
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("fetching document", "size_bytes", info.Size, "etag", info.ETag)

	obj, err := s.client.GetObject(ctx, s.bucket, s.object, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("getting %s: %w", s.Name(), err)
	}
	return obj, nil
}

func (s *ObjectSource) Name() string {
	return "s3://" + s.bucket + "/" + s.object
}

func isTransient(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound", "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return false
	}
	return resilience.Transient(err)
}

// FromConfig picks the object store when a bucket is configured and the
// local path otherwise.
func FromConfig(doc config.DocumentConfig, storage config.StorageConfig) (Source, error) {
	if doc.FromObjectStore() {
		return NewObjectSource(storage, doc.Bucket, doc.Object)
	}
	if doc.Path == "" {
		return nil, fmt.Errorf("document.path or document.bucket must be set")
	}
	return FileSource{Path: doc.Path}, nil
}
