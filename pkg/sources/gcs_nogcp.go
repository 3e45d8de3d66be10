//go:build !gcp

package sources

import (
	"context"
	"fmt"
)

// NewGCSFetcher returns a fetcher that always fails: GCS support is only
// compiled in with the gcp build tag.
func NewGCSFetcher() Fetcher {
	return FetcherFunc(func(_ context.Context, uri string) ([]byte, error) {
		if _, _, err := splitBucketURI(uri, "gs"); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("gs:// support not compiled in (build with -tags gcp)")
	})
}
