package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/garyjia/expense-desk/internal/application/port"
	"github.com/garyjia/expense-desk/internal/domain/entity"
)

// MinioConfig holds S3-compatible endpoint settings
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
}

// MinioReceiptStorage implements port.ReceiptStorage on an S3-compatible bucket
type MinioReceiptStorage struct {
	client *minio.Client
	bucket string
	logger *zap.Logger
}

// NewMinioReceiptStorage connects to the endpoint and creates the bucket when it is missing
func NewMinioReceiptStorage(ctx context.Context, cfg MinioConfig, logger *zap.Logger) (*MinioReceiptStorage, error) {
	if cfg.Endpoint == "" || cfg.AccessKey == "" || cfg.SecretKey == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("minio configuration incomplete")
	}

	endpoint, secure, err := normaliseEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.Bucket, err)
		}
		logger.Info("Created receipt bucket", zap.String("bucket", cfg.Bucket))
	}

	return &MinioReceiptStorage{client: client, bucket: cfg.Bucket, logger: logger}, nil
}

func (s *MinioReceiptStorage) Save(ctx context.Context, name string, r io.Reader, size int64, contentType string) error {
	if size < 0 {
		size = -1
	}
	info, err := s.client.PutObject(ctx, s.bucket, name, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		s.logger.Error("Failed to upload receipt", zap.String("object", name), zap.Error(err))
		return fmt.Errorf("failed to upload receipt: %w", err)
	}

	s.logger.Debug("Receipt uploaded",
		zap.String("bucket", s.bucket),
		zap.String("object", name),
		zap.Int64("size", info.Size))
	return nil
}

func (s *MinioReceiptStorage) Open(ctx context.Context, name string) (io.ReadCloser, *port.ReceiptInfo, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, nil, translateMinioError(err)
	}

	// GetObject is lazy; Stat surfaces a missing key.
	stat, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return nil, nil, translateMinioError(err)
	}

	ct := stat.ContentType
	if ct == "" {
		ct = contentTypeFor(name)
	}
	return obj, &port.ReceiptInfo{Name: name, Size: stat.Size, ContentType: ct}, nil
}

// Delete is idempotent: S3 does not report missing keys on removal
func (s *MinioReceiptStorage) Delete(ctx context.Context, name string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, name, minio.RemoveObjectOptions{}); err != nil {
		s.logger.Error("Failed to remove receipt", zap.String("object", name), zap.Error(err))
		return translateMinioError(err)
	}
	return nil
}

func translateMinioError(err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchObject":
		return entity.ErrNotFound
	}
	return fmt.Errorf("minio: %w", err)
}

// normaliseEndpoint accepts either "host:port" or a URL with an http(s) scheme
func normaliseEndpoint(raw string) (endpoint string, secure bool, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, fmt.Errorf("empty endpoint")
	}

	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", false, err
		}
		if u.Host == "" {
			return "", false, fmt.Errorf("invalid endpoint")
		}
		if u.Path != "" && u.Path != "/" {
			return "", false, fmt.Errorf("endpoint must not contain a path")
		}
		return u.Host, u.Scheme == "https", nil
	}

	return raw, false, nil
}

var _ port.ReceiptStorage = (*MinioReceiptStorage)(nil)
