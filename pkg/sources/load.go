package sources

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Source names used in LoadError.
const (
	SourceShapes  = "shapes"
	SourceRisk    = "risk"
	SourceMetrics = "metrics"
)

// ErrNoLocation is wrapped by LoadError when a required URI is empty.
var ErrNoLocation = errors.New("no location configured")

// Locations names the inputs of one load. Metrics is optional.
type Locations struct {
	Shapes  string
	Risk    string
	Metrics string
}

// Bundle holds the raw documents of one load. Metrics is nil when no
// metrics location was given.
type Bundle struct {
	Shapes  []byte
	Risk    []byte
	Metrics []byte
}

// LoadError names the source that made a load fail.
type LoadError struct {
	Source string
	URI    string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s from %q: %v", e.Source, e.URI, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// LoadAll fetches every configured location in parallel. It is all or
// nothing: the first failure cancels the other fetches and is returned as
// a *LoadError, and no partial bundle is returned.
func LoadAll(ctx context.Context, f Fetcher, loc Locations) (*Bundle, error) {
	if loc.Shapes == "" {
		return nil, &LoadError{Source: SourceShapes, Err: ErrNoLocation}
	}
	if loc.Risk == "" {
		return nil, &LoadError{Source: SourceRisk, Err: ErrNoLocation}
	}

	var b Bundle
	g, gctx := errgroup.WithContext(ctx)
	fetch := func(source, uri string, dst *[]byte) {
		g.Go(func() error {
			data, err := f.Fetch(gctx, uri)
			if err != nil {
				return &LoadError{Source: source, URI: uri, Err: err}
			}
			*dst = data
			return nil
		})
	}
	fetch(SourceShapes, loc.Shapes, &b.Shapes)
	fetch(SourceRisk, loc.Risk, &b.Risk)
	if loc.Metrics != "" {
		fetch(SourceMetrics, loc.Metrics, &b.Metrics)
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &b, nil
}
