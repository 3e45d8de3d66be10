//go:build gcp

package sources

import (
	"context"
	"fmt"
	"sync"

	"cloud.google.com/go/storage"
)

// GCSFetcher reads gs://bucket/object objects using application default
// credentials.
type GCSFetcher struct {
	once    sync.Once
	client  *storage.Client
	initErr error
}

// NewGCSFetcher returns a lazily initialised GCS fetcher.
func NewGCSFetcher() Fetcher { return &GCSFetcher{} }

// Fetch implements Fetcher.
func (f *GCSFetcher) Fetch(ctx context.Context, uri string) ([]byte, error) {
	bucket, object, err := splitBucketURI(uri, "gs")
	if err != nil {
		return nil, err
	}
	f.once.Do(func() {
		f.client, f.initErr = storage.NewClient(ctx)
	})
	if f.initErr != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", f.initErr)
	}
	r, err := f.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs get %s: %w", uri, err)
	}
	defer func() { _ = r.Close() }()
	return readCapped(r, MaxBytes)
}
