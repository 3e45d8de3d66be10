// Package sources fetches the raw inputs of the risk map (country shapes,
// risk data and the optional program metrics) from local files, HTTP, S3
// or GCS, and loads them in parallel.
package sources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"sync"
)

// MaxBytes caps every fetched document.
const MaxBytes = 64 << 20

// ErrTooLarge is returned when a document exceeds the fetcher's size cap.
var ErrTooLarge = errors.New("document exceeds size limit")

// Fetcher retrieves one document by URI.
type Fetcher interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, uri string) ([]byte, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, uri string) ([]byte, error) { return f(ctx, uri) }

// Mux dispatches by URI scheme. Bare paths use the "file" fetcher.
type Mux struct {
	mu       sync.RWMutex
	byScheme map[string]Fetcher
}

// NewMux returns a mux serving file paths, http and https. Register cloud
// fetchers with Handle.
func NewMux(httpFetcher Fetcher) *Mux {
	if httpFetcher == nil {
		httpFetcher = NewHTTPFetcher()
	}
	m := &Mux{byScheme: map[string]Fetcher{}}
	m.Handle("file", FileFetcher{})
	m.Handle("http", httpFetcher)
	m.Handle("https", httpFetcher)
	return m
}

// Handle registers f for a scheme, replacing any previous fetcher.
func (m *Mux) Handle(scheme string, f Fetcher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byScheme[strings.ToLower(scheme)] = f
}

// Fetch implements Fetcher.
func (m *Mux) Fetch(ctx context.Context, uri string) ([]byte, error) {
	scheme := Scheme(uri)
	m.mu.RLock()
	f, ok := m.byScheme[scheme]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no fetcher for scheme %q", scheme)
	}
	return f.Fetch(ctx, uri)
}

// Scheme returns the lower-cased URI scheme, or "file" for plain paths.
func Scheme(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || len(u.Scheme) <= 1 {
		// Unparseable strings and Windows drive letters are paths.
		return "file"
	}
	return strings.ToLower(u.Scheme)
}

// FileFetcher reads local files, given as paths or file:// URIs.
type FileFetcher struct{}

// Fetch implements Fetcher.
func (FileFetcher) Fetch(ctx context.Context, uri string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := strings.TrimPrefix(uri, "file://")
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return readCapped(f, MaxBytes)
}

func readCapped(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w (%d bytes)", ErrTooLarge, limit)
	}
	return data, nil
}

// splitBucketURI splits scheme://bucket/key.
func splitBucketURI(uri, scheme string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, scheme+"://")
	if !ok {
		return "", "", fmt.Errorf("not a %s URI: %q", scheme, uri)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("%s URI needs bucket and key: %q", scheme, uri)
	}
	return bucket, key, nil
}
