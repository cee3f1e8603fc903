package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSStore uploads images to a Cloud Storage bucket.
type GCSStore struct {
	client        *storage.Client
	bucket        string
	publicBaseURL string
	uploadTimeout time.Duration
}

type GCSOptions struct {
	Bucket         string
	PublicBaseURL  string
	CredentialFile string
	UploadTimeout  time.Duration
}

// NewGCSStore creates the storage client. Without a credential file the
// client uses application default credentials.
func NewGCSStore(ctx context.Context, opts GCSOptions) (*GCSStore, error) {
	bucket := strings.TrimSpace(opts.Bucket)
	if bucket == "" {
		return nil, errors.New("storage: gcs bucket is required")
	}
	clientOpts := []option.ClientOption{option.WithScopes(storage.ScopeReadWrite)}
	if creds := strings.TrimSpace(opts.CredentialFile); creds != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(creds))
	}
	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("storage: gcs client: %w", err)
	}
	base := strings.TrimRight(strings.TrimSpace(opts.PublicBaseURL), "/")
	if base == "" {
		base = "https://storage.googleapis.com/" + bucket
	}
	timeout := opts.UploadTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &GCSStore{client: client, bucket: bucket, publicBaseURL: base, uploadTimeout: timeout}, nil
}

func (g *GCSStore) Publish(ctx context.Context, key, contentType string, data []byte) (string, error) {
	object, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, g.uploadTimeout)
	defer cancel()

	w := g.client.Bucket(g.bucket).Object(object).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("storage: write gcs object: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("storage: close gcs writer: %w", err)
	}
	return publicURL(g.publicBaseURL, object), nil
}

// Close releases the underlying client.
func (g *GCSStore) Close() error {
	return g.client.Close()
}

var _ Publisher = (*GCSStore)(nil)
