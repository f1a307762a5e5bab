// Package backup ships local database backups to S3-compatible storage.
// When storage is not configured (empty bucket), the NoopUploader is used and
// backups stay on local disk only.
package backup

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hyperengineering/stockroom/internal/config"
)

// ErrNotConfigured is returned when backup storage is not configured.
var ErrNotConfigured = errors.New("backup storage not configured")

// Uploader uploads backup files and generates pre-signed download URLs.
type Uploader interface {
	// Upload uploads the backup file and returns its object key.
	Upload(ctx context.Context, filePath string) (string, error)

	// PresignedURL returns a pre-signed URL for downloading an uploaded backup.
	// Returns ErrNotConfigured when storage is not configured.
	PresignedURL(ctx context.Context, key string) (url string, expiry time.Time, err error)
}

// s3Client defines the minimal minio.Client operations used by S3Uploader.
type s3Client interface {
	FPutObject(ctx context.Context, bucket, objectName, filePath string) error
	PresignedGetObject(ctx context.Context, bucket, objectName string, expiry time.Duration) (*url.URL, error)
}

// minioClientWrapper wraps *minio.Client to satisfy the s3Client interface.
type minioClientWrapper struct {
	client *minio.Client
}

func (w *minioClientWrapper) FPutObject(ctx context.Context, bucket, objectName, filePath string) error {
	putOpts := minio.PutObjectOptions{
		ContentType: "application/vnd.sqlite3",
	}
	_, err := w.client.FPutObject(ctx, bucket, objectName, filePath, putOpts)
	return err
}

func (w *minioClientWrapper) PresignedGetObject(ctx context.Context, bucket, objectName string, expiry time.Duration) (*url.URL, error) {
	return w.client.PresignedGetObject(ctx, bucket, objectName, expiry, nil)
}

// S3Uploader uploads backups to S3-compatible storage.
type S3Uploader struct {
	client    s3Client
	bucket    string
	prefix    string
	urlExpiry time.Duration
}

// Upload uploads the backup file at filePath.
func (u *S3Uploader) Upload(ctx context.Context, filePath string) (string, error) {
	key := objectKey(u.prefix, filepath.Base(filePath))
	if err := u.client.FPutObject(ctx, u.bucket, key, filePath); err != nil {
		return "", fmt.Errorf("upload backup to S3: %w", err)
	}
	return key, nil
}

// PresignedURL returns a pre-signed GET URL for an uploaded backup.
func (u *S3Uploader) PresignedURL(ctx context.Context, key string) (string, time.Time, error) {
	presigned, err := u.client.PresignedGetObject(ctx, u.bucket, key, u.urlExpiry)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate pre-signed URL: %w", err)
	}
	expiry := time.Now().Add(u.urlExpiry)
	return presigned.String(), expiry, nil
}

// NoopUploader is used when backup storage is not configured.
type NoopUploader struct{}

// Upload is a no-op and returns an empty key.
func (u *NoopUploader) Upload(ctx context.Context, filePath string) (string, error) {
	return "", nil
}

// PresignedURL returns ErrNotConfigured.
func (u *NoopUploader) PresignedURL(ctx context.Context, key string) (string, time.Time, error) {
	return "", time.Time{}, ErrNotConfigured
}

// NewUploader creates the appropriate Uploader based on configuration.
// Returns NoopUploader when bucket is empty, S3Uploader otherwise.
func NewUploader(cfg config.StorageConfig) (Uploader, error) {
	if cfg.Bucket == "" {
		return &NoopUploader{}, nil
	}

	useSSL := cfg.SSL()
	endpoint := stripScheme(cfg.Endpoint, &useSSL)

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create S3 client: %w", err)
	}

	return &S3Uploader{
		client:    &minioClientWrapper{client: client},
		bucket:    cfg.Bucket,
		prefix:    cfg.Prefix,
		urlExpiry: time.Duration(cfg.URLExpiry),
	}, nil
}

// stripScheme removes an http(s):// prefix from endpoint, which minio
// rejects, and lets the scheme decide ssl.
func stripScheme(endpoint string, ssl *bool) string {
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		*ssl = true
		return strings.TrimPrefix(endpoint, "https://")
	case strings.HasPrefix(endpoint, "http://"):
		*ssl = false
		return strings.TrimPrefix(endpoint, "http://")
	}
	return endpoint
}

// objectKey returns the object key for a backup file.
// Convention: {prefix}/backups/{file name}
func objectKey(prefix, name string) string {
	if prefix == "" {
		return path.Join("backups", name)
	}
	return path.Join(prefix, "backups", name)
}
