// Package gcsuploader moves statement files in and out of Google Cloud Storage.
package gcsuploader

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
)

// uploadTimeout bounds a single object upload.
const uploadTimeout = 2 * time.Minute

// GCSStorageService reads and writes statement objects. It assumes
// Application Default Credentials are configured.
type GCSStorageService struct {
	client *storage.Client
}

// NewGCSStorageService creates a storage client.
func NewGCSStorageService(ctx context.Context) (*GCSStorageService, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSStorageService{client: client}, nil
}

// Close releases the underlying client.
func (s *GCSStorageService) Close() error {
	return s.client.Close()
}

// UploadFile uploads a local file to a GCS bucket under the given object name
// and returns its gs:// URI.
func (s *GCSStorageService) UploadFile(ctx context.Context, bucketName, objectName, filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("open file %q: %w", filePath, err)
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := s.client.Bucket(bucketName).Object(objectName).NewWriter(ctx)
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("copy file to GCS writer: %w", err)
	}

	// Close finalizes the upload.
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize upload: %w", err)
	}

	return fmt.Sprintf("gs://%s/%s", bucketName, objectName), nil
}

// FetchFromGCS downloads the file bytes from the given GCS URI.
func (s *GCSStorageService) FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error) {
	bucketName, objectPath, err := ParseGCSURI(gcsURI)
	if err != nil {
		return nil, err
	}

	rc, err := s.client.Bucket(bucketName).Object(objectPath).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetchFromGCS: reading object %s/%s: %w", bucketName, objectPath, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("fetchFromGCS: reading bytes: %w", err)
	}

	return data, nil
}

// ExtractFilenameFromGCSURI extracts the filename from a GCS URI.
func (s *GCSStorageService) ExtractFilenameFromGCSURI(uri string) string {
	return ExtractFilenameFromGCSURI(uri)
}

// ParseGCSURI splits "gs://bucket/path/to/file" into bucket and object path.
func ParseGCSURI(gcsURI string) (bucket, object string, err error) {
	if !strings.HasPrefix(gcsURI, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", gcsURI)
	}

	parts := strings.SplitN(strings.TrimPrefix(gcsURI, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", gcsURI)
	}
	return parts[0], parts[1], nil
}

// ExtractFilenameFromGCSURI extracts the filename from a GCS URI.
// e.g., "gs://bucket/folder/file.pdf" → "file.pdf"
func ExtractFilenameFromGCSURI(uri string) string {
	trimmed := strings.TrimPrefix(uri, "gs://")

	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 {
		return trimmed
	}

	return path.Base(parts[1])
}

// ObjectName builds a unique object path for an uploaded statement,
// grouped by upload month: statements/2024/01/<uuid>-file.csv.
func ObjectName(filename string, now time.Time) string {
	return fmt.Sprintf("statements/%s/%s-%s", now.Format("2006/01"), uuid.New().String(), path.Base(filename))
}
