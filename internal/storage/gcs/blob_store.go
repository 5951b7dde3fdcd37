// Package gcs provides a BlobStore backed by Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/hiparis-pubscraper/internal/crawler"
)

// Config names the bucket that receives exported spreadsheets.
type Config struct {
	Bucket string
}

// BlobStore writes exported spreadsheets to a GCS bucket.
type BlobStore struct {
	client *storage.Client
	bucket string
}

// New creates a GCS-backed blob store.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, errors.New("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	return &BlobStore{client: client, bucket: cfg.Bucket}, nil
}

// PutObject uploads data and returns its gs:// URI. Objects download under
// their base name and are never cached, since resuming a failed export
// rewrites the same path.
func (s *BlobStore) PutObject(ctx context.Context, name string, contentType string, r io.Reader) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("path is required")
	}
	w := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	applyAttrs(&w.ObjectAttrs, name, contentType)

	_, copyErr := io.Copy(w, r)
	closeErr := w.Close()
	switch {
	case copyErr != nil:
		return "", fmt.Errorf("upload %s: %w", name, errors.Join(copyErr, closeErr))
	case closeErr != nil:
		return "", fmt.Errorf("finalize %s: %w", name, closeErr)
	}
	return s.uri(name), nil
}

// GetObject downloads the object at name.
func (s *BlobStore) GetObject(ctx context.Context, name string) ([]byte, error) {
	rc, err := s.client.Bucket(s.bucket).Object(name).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: %s", crawler.ErrObjectNotFound, s.uri(name))
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.uri(name), err)
	}
	defer rc.Close() //nolint:errcheck // read-only handle
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.uri(name), err)
	}
	return data, nil
}

func (s *BlobStore) uri(name string) string {
	return "gs://" + s.bucket + "/" + name
}

func applyAttrs(attrs *storage.ObjectAttrs, name, contentType string) {
	if contentType != "" {
		attrs.ContentType = contentType
	}
	attrs.ContentDisposition = fmt.Sprintf("attachment; filename=%q", path.Base(name))
	attrs.CacheControl = "no-cache"
}
