package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/therealutkarshpriyadarshi/motionscan/internal/config"
)

// presignExpiry is how long generated report download URLs stay valid
const presignExpiry = time.Hour

// Storage provides object storage operations over the source and report buckets
type Storage struct {
	client       *minio.Client
	sourceBucket string
	reportBucket string
}

// New creates a new storage client and ensures both buckets exist
func New(cfg config.StorageConfig) (*Storage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	ctx := context.Background()
	for _, bucket := range []string{cfg.SourceBucket, cfg.ReportBucket} {
		if err := ensureBucket(ctx, client, bucket, cfg.Region); err != nil {
			return nil, err
		}
	}

	return &Storage{
		client:       client,
		sourceBucket: cfg.SourceBucket,
		reportBucket: cfg.ReportBucket,
	}, nil
}

func ensureBucket(ctx context.Context, client *minio.Client, bucket, region string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		err = client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{
			Region: region,
		})
		if err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
		}
	}

	return nil
}

// UploadSource uploads video source data to the source bucket
func (s *Storage) UploadSource(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.sourceBucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload source: %w", err)
	}

	return nil
}

// UploadSourceFile uploads a video source from the local filesystem
func (s *Storage) UploadSourceFile(ctx context.Context, objectName, filePath string) error {
	contentType := getContentType(filePath)

	_, err := s.client.FPutObject(ctx, s.sourceBucket, objectName, filePath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload source file: %w", err)
	}

	return nil
}

// OpenSource streams a video source from the source bucket
func (s *Storage) OpenSource(ctx context.Context, objectName string) (io.ReadCloser, error) {
	object, err := s.client.GetObject(ctx, s.sourceBucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to open source: %w", err)
	}

	return object, nil
}

// DownloadSourceFile downloads a video source to the local filesystem
func (s *Storage) DownloadSourceFile(ctx context.Context, objectName, filePath string) error {
	err := s.client.FGetObject(ctx, s.sourceBucket, objectName, filePath, minio.GetObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to download source: %w", err)
	}

	return nil
}

// DownloadSourceToTemp downloads a source into tempDir, preserving the object's
// file extension so format detection by extension keeps working downstream.
func (s *Storage) DownloadSourceToTemp(ctx context.Context, objectName, tempDir string) (string, error) {
	f, err := os.CreateTemp(tempDir, "source-*"+filepath.Ext(objectName))
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	path := f.Name()
	f.Close()

	if err := s.DownloadSourceFile(ctx, objectName, path); err != nil {
		os.Remove(path)
		return "", err
	}

	return path, nil
}

// DeleteSource deletes a video source object
func (s *Storage) DeleteSource(ctx context.Context, objectName string) error {
	err := s.client.RemoveObject(ctx, s.sourceBucket, objectName, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to delete source: %w", err)
	}

	return nil
}

// UploadReport uploads a rendered report to the report bucket
func (s *Storage) UploadReport(ctx context.Context, objectName string, reader io.Reader, size int64) error {
	_, err := s.client.PutObject(ctx, s.reportBucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: getContentType(objectName),
	})
	if err != nil {
		return fmt.Errorf("failed to upload report: %w", err)
	}

	return nil
}

// OpenReport streams a stored report from the report bucket
func (s *Storage) OpenReport(ctx context.Context, objectName string) (io.ReadCloser, error) {
	object, err := s.client.GetObject(ctx, s.reportBucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to open report: %w", err)
	}

	return object, nil
}

// DeleteReport deletes a report object
func (s *Storage) DeleteReport(ctx context.Context, objectName string) error {
	err := s.client.RemoveObject(ctx, s.reportBucket, objectName, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to delete report: %w", err)
	}

	return nil
}

// ReportURL returns a presigned download URL for a stored report
func (s *Storage) ReportURL(ctx context.Context, objectName string) (string, error) {
	url, err := s.client.PresignedGetObject(ctx, s.reportBucket, objectName, presignExpiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate URL: %w", err)
	}

	return url.String(), nil
}

// ListSources lists source objects with a prefix
func (s *Storage) ListSources(ctx context.Context, prefix string) ([]string, error) {
	return s.list(ctx, s.sourceBucket, prefix)
}

// ListReports lists report objects with a prefix
func (s *Storage) ListReports(ctx context.Context, prefix string) ([]string, error) {
	return s.list(ctx, s.reportBucket, prefix)
}

func (s *Storage) list(ctx context.Context, bucket, prefix string) ([]string, error) {
	var objects []string

	for object := range s.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if object.Err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", object.Err)
		}
		objects = append(objects, object.Key)
	}

	return objects, nil
}

// getContentType returns the content type based on file extension
func getContentType(filePath string) string {
	ext := filepath.Ext(filePath)
	switch ext {
	case ".y4m":
		return "video/x-yuv4mpeg"
	case ".yuv":
		return "application/octet-stream"
	case ".mp4":
		return "video/mp4"
	case ".mov":
		return "video/quicktime"
	case ".avi":
		return "video/x-msvideo"
	case ".mkv":
		return "video/x-matroska"
	case ".webm":
		return "video/webm"
	case ".csv":
		return "text/csv"
	case ".json":
		return "application/json"
	case ".xml":
		return "application/xml"
	default:
		return "application/octet-stream"
	}
}
