// Package riskdata holds the sanctions risk dataset: the typed record
// structure, its JSON and CSV loaders, and the program metrics join.
//
// A Dataset is built once and never mutated. Every record is keyed by a
// canonical country code and carries one sub-record per jurisdiction, each
// of which may carry named subcategory sub-records. Absent fields are nil so
// the resolver can tell "not supplied" apart from a zero value.
package riskdata

import (
	"errors"

	"github.com/Mindburn-Labs/riskmap/pkg/jurisdiction"
)

// ErrInvalidDataset is returned when a risk file cannot be decoded or fails
// schema validation.
var ErrInvalidDataset = errors.New("invalid risk dataset")

// Detail is one sanction measure shown for a subcategory.
type Detail struct {
	Type        string `json:"type,omitempty"`
	Reference   string `json:"reference,omitempty"`
	Description string `json:"description,omitempty"`
	Targets     string `json:"targets,omitempty"`
	SourceURL   string `json:"source_url,omitempty"`
}

// Fields is the overridable field set shared by every record level.
// A nil pointer means the field was not supplied. A nil Details slice means
// details were not supplied; an empty non-nil slice means "supplied, none".
type Fields struct {
	Score   *float64
	Risk    *string
	EO      *int
	Det     *int
	Lic     *int
	Reg     *int
	URL     *string
	Details []Detail
}

// HasRating reports whether the level supplies a score or a risk label.
func (f *Fields) HasRating() bool {
	return f != nil && (f.Score != nil || f.Risk != nil)
}

// IsEmpty reports whether no field is supplied.
func (f *Fields) IsEmpty() bool {
	if f == nil {
		return true
	}
	return f.Score == nil && f.Risk == nil && f.EO == nil && f.Det == nil &&
		f.Lic == nil && f.Reg == nil && f.URL == nil && f.Details == nil
}

// Counter returns the named counter field, or nil for unknown names.
func (f *Fields) Counter(name string) *int {
	if f == nil {
		return nil
	}
	switch name {
	case jurisdiction.CounterEO:
		return f.EO
	case jurisdiction.CounterDet:
		return f.Det
	case jurisdiction.CounterLic:
		return f.Lic
	case jurisdiction.CounterReg:
		return f.Reg
	}
	return nil
}

func (f *Fields) clone() *Fields {
	if f == nil {
		return nil
	}
	c := &Fields{
		Score: copyPtr(f.Score),
		Risk:  copyPtr(f.Risk),
		EO:    copyPtr(f.EO),
		Det:   copyPtr(f.Det),
		Lic:   copyPtr(f.Lic),
		Reg:   copyPtr(f.Reg),
		URL:   copyPtr(f.URL),
	}
	if f.Details != nil {
		c.Details = append(make([]Detail, 0, len(f.Details)), f.Details...)
	}
	return c
}

// JurisdictionRecord is a country's record under one jurisdiction.
type JurisdictionRecord struct {
	Fields
	Subcategories map[string]*Fields
}

// Subcategory returns the named subcategory sub-record.
func (jr *JurisdictionRecord) Subcategory(name string) (*Fields, bool) {
	if jr == nil || jr.Subcategories == nil {
		return nil, false
	}
	f, ok := jr.Subcategories[name]
	return f, ok
}

func (jr *JurisdictionRecord) clone() *JurisdictionRecord {
	if jr == nil {
		return nil
	}
	c := &JurisdictionRecord{Fields: *jr.Fields.clone()}
	if jr.Subcategories != nil {
		c.Subcategories = make(map[string]*Fields, len(jr.Subcategories))
		for k, v := range jr.Subcategories {
			c.Subcategories[k] = v.clone()
		}
	}
	return c
}

// Record is everything known about one country.
type Record struct {
	Code          string
	Jurisdictions map[jurisdiction.Code]*JurisdictionRecord
}

func (r *Record) clone() *Record {
	c := &Record{Code: r.Code, Jurisdictions: make(map[jurisdiction.Code]*JurisdictionRecord, len(r.Jurisdictions))}
	for k, v := range r.Jurisdictions {
		c.Jurisdictions[k] = v.clone()
	}
	return c
}

// Meta describes the dataset file.
type Meta struct {
	Version     string `json:"version,omitempty"`
	GeneratedAt string `json:"generated_at,omitempty"`
	Source      string `json:"source,omitempty"`
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Ptr returns a pointer to v. Convenient when building records in code.
func Ptr[T any](v T) *T { return &v }
