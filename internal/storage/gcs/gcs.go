// Package gcs stores debug artifacts in a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
)

// Store uploads objects to one bucket under an optional key prefix. It
// implements detect.BlobStore.
type Store struct {
	client *storage.Client
	bucket string
	prefix string
	logger *zap.Logger
}

// New dials GCS with ambient credentials.
func New(ctx context.Context, bucket, prefix string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &Store{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		logger: logger,
	}, nil
}

// PutObject uploads the object and returns its gs:// URI.
func (s *Store) PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error) {
	key := path
	if s.prefix != "" {
		key = s.prefix + "/" + path
	}

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("upload object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize object %s: %w", key, err)
	}

	uri := fmt.Sprintf("gs://%s/%s", s.bucket, key)
	s.logger.Debug("artifact uploaded", zap.String("uri", uri))
	return uri, nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}
