// Package mapservice owns the live risk map: it loads the inputs, publishes
// an immutable State and renders styled maps from it. Readers never see a
// partially built State.
package mapservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Mindburn-Labs/riskmap/pkg/cache"
	"github.com/Mindburn-Labs/riskmap/pkg/choropleth"
	"github.com/Mindburn-Labs/riskmap/pkg/geoid"
	"github.com/Mindburn-Labs/riskmap/pkg/jurisdiction"
	"github.com/Mindburn-Labs/riskmap/pkg/observability"
	"github.com/Mindburn-Labs/riskmap/pkg/resolver"
	"github.com/Mindburn-Labs/riskmap/pkg/riskdata"
	"github.com/Mindburn-Labs/riskmap/pkg/snapshot"
	"github.com/Mindburn-Labs/riskmap/pkg/sources"
	"github.com/Mindburn-Labs/riskmap/pkg/style"
)

var (
	// ErrNotReady is returned before the first successful load.
	ErrNotReady = errors.New("map data not loaded")
	// ErrUnknownProfile is returned for a style profile that is not configured.
	ErrUnknownProfile = errors.New("unknown style profile")
)

// State is one published, read-only view of the inputs.
type State struct {
	Dataset    *riskdata.Dataset
	Shapes     *choropleth.FeatureCollection
	Normalizer *geoid.Normalizer
	Resolver   *resolver.Resolver
	// Unmatched lists metrics programs that matched no country.
	Unmatched  []string
	LoadedAt   time.Time
	SnapshotID string
}

// Options configures a Service. Fetcher and Locations are required for
// Load; everything else has a default.
type Options struct {
	Fetcher             sources.Fetcher
	Locations           sources.Locations
	Registry            *jurisdiction.Registry
	DefaultJurisdiction jurisdiction.Code
	Styles              *style.Catalog
	Store               snapshot.Store
	Cache               cache.Cache
	CacheTTL            time.Duration
	Telemetry           *observability.Provider
	Logger              *slog.Logger
}

// Service holds the current State.
type Service struct {
	opts   Options
	state  atomic.Pointer[State]
	loadMu sync.Mutex // serializes Publish
}

// New creates a Service with no State.
func New(opts Options) *Service {
	if opts.Registry == nil {
		opts.Registry = jurisdiction.Default()
	}
	if opts.DefaultJurisdiction == "" {
		opts.DefaultJurisdiction = jurisdiction.US
	}
	if opts.Styles == nil {
		opts.Styles, _ = style.NewCatalog(nil)
	}
	if opts.Store == nil {
		opts.Store = snapshot.NewMemoryStore()
	}
	if opts.Cache == nil {
		opts.Cache = cache.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default().With("component", "mapservice")
	}
	return &Service{opts: opts}
}

// State returns the current state, or nil before the first load.
func (s *Service) State() *State { return s.state.Load() }

// Ready reports whether a state has been published.
func (s *Service) Ready() bool { return s.state.Load() != nil }

// Registry returns the jurisdiction registry.
func (s *Service) Registry() *jurisdiction.Registry { return s.opts.Registry }

// Styles returns the style catalog.
func (s *Service) Styles() *style.Catalog { return s.opts.Styles }

// Snapshots returns the snapshot store.
func (s *Service) Snapshots() snapshot.Store { return s.opts.Store }

// Load fetches all inputs, builds a State and publishes it. Any failure
// leaves the current State in place.
func (s *Service) Load(ctx context.Context) (st *State, err error) {
	ctx, done := s.opts.Telemetry.TrackOperation(ctx, "dataset.load")
	defer func() { done(err) }()

	if s.opts.Fetcher == nil {
		return nil, fmt.Errorf("no fetcher configured")
	}
	bundle, err := sources.LoadAll(ctx, s.opts.Fetcher, s.opts.Locations)
	if err != nil {
		s.opts.Telemetry.RecordReload(ctx, "fetch_failed")
		return nil, err
	}
	st, err = s.Build(bundle)
	if err != nil {
		s.opts.Telemetry.RecordReload(ctx, "invalid")
		return nil, err
	}
	if err := s.Publish(ctx, st, bundle.Risk); err != nil {
		return nil, err
	}
	return st, nil
}

// Build turns raw documents into a State without publishing it.
func (s *Service) Build(b *sources.Bundle) (*State, error) {
	fc, err := choropleth.ParseShapes(b.Shapes)
	if err != nil {
		return nil, &sources.LoadError{Source: sources.SourceShapes, URI: s.opts.Locations.Shapes, Err: err}
	}
	names := geoid.New().IndexFeatures(fc.Properties())
	normalizer := geoid.New(geoid.WithNameIndex(names))

	ds, err := riskdata.Parse(b.Risk, riskdata.Options{
		Registry:            s.opts.Registry,
		DefaultJurisdiction: s.opts.DefaultJurisdiction,
		Names:               names,
	})
	if err != nil {
		return nil, &sources.LoadError{Source: sources.SourceRisk, URI: s.opts.Locations.Risk, Err: err}
	}

	var unmatched []string
	if b.Metrics != nil {
		rows, err := riskdata.ParseMetrics(bytes.NewReader(b.Metrics))
		if err != nil {
			return nil, &sources.LoadError{Source: sources.SourceMetrics, URI: s.opts.Locations.Metrics, Err: err}
		}
		joined, err := riskdata.JoinMetrics(ds, rows, riskdata.JoinOptions{Names: names})
		if err != nil {
			return nil, &sources.LoadError{Source: sources.SourceMetrics, URI: s.opts.Locations.Metrics, Err: err}
		}
		ds, unmatched = joined.Dataset, joined.Unmatched
	}

	return &State{
		Dataset:    ds,
		Shapes:     fc,
		Normalizer: normalizer,
		Resolver:   resolver.New(ds, s.opts.Registry),
		Unmatched:  unmatched,
	}, nil
}

// Publish makes st current. A dataset whose version is lower than the
// current one is refused with snapshot.ErrDowngrade. A dataset with a new
// hash is recorded in the snapshot store first.
func (s *Service) Publish(ctx context.Context, st *State, raw []byte) error {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	cur := s.state.Load()
	if cur != nil {
		if err := snapshot.CheckVersion(cur.Dataset.Meta().Version, st.Dataset.Meta().Version); err != nil {
			s.opts.Telemetry.RecordReload(ctx, "downgrade")
			return err
		}
	}

	if cur == nil || cur.Dataset.Hash() != st.Dataset.Hash() {
		snap := snapshot.FromDataset(st.Dataset, raw)
		if err := s.opts.Store.Put(ctx, snap); err != nil {
			s.opts.Telemetry.RecordReload(ctx, "store_failed")
			return fmt.Errorf("record snapshot: %w", err)
		}
		st.SnapshotID = snap.ID
	} else {
		st.SnapshotID = cur.SnapshotID
	}
	st.LoadedAt = time.Now().UTC()

	s.state.Store(st)
	s.opts.Telemetry.RecordReload(ctx, "published")
	s.opts.Logger.InfoContext(ctx, "dataset published",
		"hash", st.Dataset.Hash(),
		"version", st.Dataset.Meta().Version,
		"records", st.Dataset.Len(),
		"features", len(st.Shapes.Features),
		"warnings", len(st.Dataset.Warnings()),
		"snapshot", st.SnapshotID,
	)
	return nil
}

// Resolve resolves one country against the current state.
func (s *Service) Resolve(code string, sel resolver.Selection) (resolver.View, error) {
	st := s.state.Load()
	if st == nil {
		return resolver.View{}, ErrNotReady
	}
	return st.Resolver.Resolve(code, sel), nil
}

// Mapper returns the mapper of a style profile.
func (s *Service) Mapper(profile string) (*style.Mapper, error) {
	m, ok := s.opts.Styles.Get(profile)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProfile, profile)
	}
	return m, nil
}

// Render returns the styled GeoJSON for sel and profile. Results are
// cached per dataset hash, selection and profile.
func (s *Service) Render(ctx context.Context, sel resolver.Selection, profile string) (data []byte, err error) {
	st := s.state.Load()
	if st == nil {
		return nil, ErrNotReady
	}
	m, err := s.Mapper(profile)
	if err != nil {
		return nil, err
	}
	sel = sel.Normalize()
	if profile == "" {
		profile = style.DefaultProfile
	}

	key := cache.Key("map", st.Dataset.Hash(), string(sel.Jurisdiction), sel.Subcategory, profile)
	if cached, ok := s.opts.Cache.Get(ctx, key); ok {
		s.opts.Telemetry.RecordCacheLookup(ctx, true)
		return cached, nil
	}
	s.opts.Telemetry.RecordCacheLookup(ctx, false)

	ctx, done := s.opts.Telemetry.TrackOperation(ctx, "map.render",
		attribute.String("jurisdiction", string(sel.Jurisdiction)),
		attribute.String("profile", profile),
	)
	defer func() { done(err) }()

	out := choropleth.Render(st.Shapes, st.Normalizer, st.Resolver, m, sel)
	data, err = json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode map: %w", err)
	}
	s.opts.Cache.Set(ctx, key, data, s.opts.CacheTTL)
	return data, nil
}
