// Package choropleth joins country shapes with resolved risk views and
// styles, producing GeoJSON a browser map can draw as is.
package choropleth

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/Mindburn-Labs/riskmap/pkg/geoid"
	"github.com/Mindburn-Labs/riskmap/pkg/resolver"
	"github.com/Mindburn-Labs/riskmap/pkg/style"
)

// Property keys added to every rendered feature.
const (
	PropCode  = "code"
	PropName  = "name"
	PropRisk  = "risk"
	PropStyle = "style"
)

// FeatureCollection is a GeoJSON feature collection. Geometry is carried
// through untouched.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
	Metadata *Metadata `json:"metadata,omitempty"`
}

// Feature is a GeoJSON feature.
type Feature struct {
	Type       string          `json:"type"`
	ID         any             `json:"id,omitempty"`
	Properties map[string]any  `json:"properties"`
	Geometry   json.RawMessage `json:"geometry"`
}

// Metadata describes a rendered collection.
type Metadata struct {
	Jurisdiction string  `json:"jurisdiction"`
	Subcategory  string  `json:"subcategory"`
	DatasetHash  string  `json:"datasetHash,omitempty"`
	Summary      Summary `json:"summary"`
}

// ParseShapes decodes a GeoJSON FeatureCollection.
func ParseShapes(data []byte) (*FeatureCollection, error) {
	var fc FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("decode shapes: %w", err)
	}
	if fc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("decode shapes: type %q is not FeatureCollection", fc.Type)
	}
	for i := range fc.Features {
		f := &fc.Features[i]
		if f.Type != "Feature" {
			return nil, fmt.Errorf("decode shapes: feature %d has type %q", i, f.Type)
		}
		if f.Properties == nil {
			f.Properties = map[string]any{}
		}
	}
	fc.Metadata = nil
	return &fc, nil
}

// Properties returns the identifying properties of every feature. A
// top-level string id is visible as the "id" property unless the feature
// already has one.
func (fc *FeatureCollection) Properties() []map[string]any {
	out := make([]map[string]any, len(fc.Features))
	for i, f := range fc.Features {
		out[i] = f.lookupProps()
	}
	return out
}

func (f Feature) lookupProps() map[string]any {
	id, ok := f.ID.(string)
	if !ok {
		return f.Properties
	}
	if _, has := f.Properties["id"]; has {
		return f.Properties
	}
	props := make(map[string]any, len(f.Properties)+1)
	for k, v := range f.Properties {
		props[k] = v
	}
	props["id"] = id
	return props
}

// Render normalizes, resolves and styles every feature under sel. The input
// collection is not modified: each output feature has a fresh properties
// map that adds code, name, risk and style. Every call is a full pass.
func Render(fc *FeatureCollection, n *geoid.Normalizer, r *resolver.Resolver, m *style.Mapper, sel resolver.Selection) *FeatureCollection {
	if n == nil {
		n = geoid.New()
	}
	sel = sel.Normalize()

	out := &FeatureCollection{Type: "FeatureCollection", Features: make([]Feature, len(fc.Features))}
	views := make([]resolver.View, len(fc.Features))
	for i, f := range fc.Features {
		lookup := f.lookupProps()
		code := n.Normalize(lookup)
		view := r.Resolve(code, sel)
		views[i] = view

		props := make(map[string]any, len(f.Properties)+4)
		for k, v := range f.Properties {
			props[k] = v
		}
		props[PropCode] = code
		props[PropName] = n.DisplayName(lookup)
		props[PropRisk] = view
		props[PropStyle] = m.StyleFor(view)

		out.Features[i] = Feature{Type: f.Type, ID: f.ID, Properties: props, Geometry: f.Geometry}
	}

	out.Metadata = &Metadata{
		Jurisdiction: string(sel.Jurisdiction),
		Subcategory:  sel.Subcategory,
		DatasetHash:  r.Dataset().Hash(),
		Summary:      Summarize(views),
	}
	return out
}

// Summary counts rendered features.
type Summary struct {
	Total    int            `json:"total"`
	WithData int            `json:"withData"`
	NoData   int            `json:"noData"`
	Levels   map[string]int `json:"levels"`
	Unknown  int            `json:"unknown"`
}

// Summarize counts views with and without data, per risk level (lower
// cased) and with unresolvable codes.
func Summarize(views []resolver.View) Summary {
	s := Summary{Total: len(views), Levels: map[string]int{}}
	for _, v := range views {
		if v.Code == geoid.Unknown {
			s.Unknown++
		}
		if !v.HasData {
			s.NoData++
			continue
		}
		s.WithData++
		if level := strings.ToLower(strings.TrimSpace(v.Risk)); level != "" && v.Risk != resolver.NoRisk {
			s.Levels[level]++
		}
	}
	return s
}

// LevelNames returns the summary's levels sorted by count, then name.
func (s Summary) LevelNames() []string {
	names := make([]string, 0, len(s.Levels))
	for name := range s.Levels {
		names = append(names, name)
	}
	sort.Slice(names, func(i, k int) bool {
		if s.Levels[names[i]] != s.Levels[names[k]] {
			return s.Levels[names[i]] > s.Levels[names[k]]
		}
		return names[i] < names[k]
	})
	return names
}
