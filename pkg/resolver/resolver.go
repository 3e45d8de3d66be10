// Package resolver turns (country, jurisdiction, subcategory) into a single
// flattened view of the risk dataset. It is the one place where the record
// fallback chain lives: subcategory, then jurisdiction, then defaults.
package resolver

import (
	"strings"

	"github.com/Mindburn-Labs/riskmap/pkg/geoid"
	"github.com/Mindburn-Labs/riskmap/pkg/jurisdiction"
	"github.com/Mindburn-Labs/riskmap/pkg/riskdata"
)

// All selects no subcategory filter.
const All = "all"

// NoRisk is the risk label reported when no level supplies one.
const NoRisk = "N/A"

// Selection is the caller's current view of the map.
type Selection struct {
	Jurisdiction jurisdiction.Code `json:"jurisdiction"`
	Subcategory  string            `json:"subcategory"`
}

// Filtered reports whether a named subcategory is selected.
func (s Selection) Filtered() bool {
	sub := strings.TrimSpace(s.Subcategory)
	return sub != "" && !strings.EqualFold(sub, All)
}

// Normalize returns the selection with an empty subcategory spelled All.
func (s Selection) Normalize() Selection {
	if !s.Filtered() {
		s.Subcategory = All
	} else {
		s.Subcategory = strings.TrimSpace(s.Subcategory)
	}
	return s
}

// View is the flattened result of one resolution.
type View struct {
	Code         string            `json:"code"`
	Jurisdiction jurisdiction.Code `json:"jurisdiction"`
	Subcategory  string            `json:"subcategory"`
	Score        float64           `json:"score"`
	Risk         string            `json:"risk"`
	EO           int               `json:"eo"`
	Det          int               `json:"det"`
	Lic          int               `json:"lic"`
	Reg          int               `json:"reg"`
	URL          string            `json:"url"`
	Details      []riskdata.Detail `json:"details"`
	// HasData is false only when neither the active nor the jurisdiction
	// record supplied a score or a risk label.
	HasData bool `json:"hasData"`
	// HasScore reports that Score came from the data rather than the zero
	// default. A labelled record may have HasData without HasScore.
	HasScore bool `json:"hasScore"`
	// FromSubcategory reports that a subcategory record was active.
	FromSubcategory bool `json:"fromSubcategory"`
}

// Resolver resolves views against one immutable dataset. It holds no
// selection state and is safe for concurrent use.
type Resolver struct {
	ds       *riskdata.Dataset
	registry *jurisdiction.Registry
}

// New creates a resolver. A nil dataset behaves as an empty one; a nil
// registry uses jurisdiction.Default().
func New(ds *riskdata.Dataset, registry *jurisdiction.Registry) *Resolver {
	if ds == nil {
		ds = riskdata.Empty()
	}
	if registry == nil {
		registry = jurisdiction.Default()
	}
	return &Resolver{ds: ds, registry: registry}
}

// Dataset returns the dataset this resolver reads.
func (r *Resolver) Dataset() *riskdata.Dataset { return r.ds }

// Resolve flattens the record for code under sel. It never fails: missing
// records, jurisdictions and subcategories resolve to defaults.
func (r *Resolver) Resolve(code string, sel Selection) View {
	sel = sel.Normalize()
	code = geoid.Canonical(code)

	v := View{
		Code:         code,
		Jurisdiction: sel.Jurisdiction,
		Subcategory:  sel.Subcategory,
		Risk:         NoRisk,
		Details:      []riskdata.Detail{},
	}
	if code != geoid.Unknown {
		if j, ok := r.registry.Lookup(sel.Jurisdiction); ok {
			v.URL = j.CountryURL(code)
		}
	}
	if code == geoid.Unknown {
		return v
	}

	jr, _ := r.ds.Jurisdiction(code, sel.Jurisdiction)
	var base *riskdata.Fields
	if jr != nil {
		base = &jr.Fields
	}

	active := base
	if sel.Filtered() {
		if sub, ok := jr.Subcategory(sel.Subcategory); ok {
			active = sub
			v.FromSubcategory = true
		}
	}

	if s := pick(active, base, func(f *riskdata.Fields) *float64 { return f.Score }); s != nil {
		v.Score = *s
		v.HasScore = true
	}
	if s := pick(active, base, func(f *riskdata.Fields) *string { return f.Risk }); s != nil {
		v.Risk = *s
	}
	if n := pick(active, base, func(f *riskdata.Fields) *int { return f.EO }); n != nil {
		v.EO = *n
	}
	if n := pick(active, base, func(f *riskdata.Fields) *int { return f.Det }); n != nil {
		v.Det = *n
	}
	if n := pick(active, base, func(f *riskdata.Fields) *int { return f.Lic }); n != nil {
		v.Lic = *n
	}
	if n := pick(active, base, func(f *riskdata.Fields) *int { return f.Reg }); n != nil {
		v.Reg = *n
	}
	if u := pick(active, base, func(f *riskdata.Fields) *string { return f.URL }); u != nil {
		v.URL = *u
	}

	if sel.Filtered() {
		switch {
		case active != nil && active.Details != nil:
			v.Details = append([]riskdata.Detail{}, active.Details...)
		case base != nil && base.Details != nil:
			v.Details = append([]riskdata.Detail{}, base.Details...)
		}
	}

	v.HasData = active.HasRating() || base.HasRating()
	return v
}

// ResolveAll resolves every code under the same selection.
func (r *Resolver) ResolveAll(codes []string, sel Selection) []View {
	out := make([]View, len(codes))
	for i, code := range codes {
		out[i] = r.Resolve(code, sel)
	}
	return out
}

// pick reads a field from the active record, falling back to the
// jurisdiction record.
func pick[T any](active, base *riskdata.Fields, get func(*riskdata.Fields) *T) *T {
	if active != nil {
		if v := get(active); v != nil {
			return v
		}
	}
	if base != nil && base != active {
		return get(base)
	}
	return nil
}
