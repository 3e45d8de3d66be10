package riskdata

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/Masterminds/semver/v3"
	"github.com/gowebpki/jcs"

	"github.com/Mindburn-Labs/riskmap/pkg/geoid"
	"github.com/Mindburn-Labs/riskmap/pkg/jurisdiction"
)

// Dataset is an immutable snapshot of risk records keyed by canonical
// country code. It is safe for concurrent reads.
type Dataset struct {
	records  map[string]*Record
	meta     Meta
	version  *semver.Version
	hash     string
	warnings []string
}

// New builds a dataset from records assembled in code. Records are copied.
func New(meta Meta, records ...*Record) (*Dataset, error) {
	ds := &Dataset{records: make(map[string]*Record, len(records)), meta: meta}
	if meta.Version != "" {
		v, err := semver.NewVersion(meta.Version)
		if err != nil {
			return nil, fmt.Errorf("%w: version %q: %v", ErrInvalidDataset, meta.Version, err)
		}
		ds.version = v
	}
	for _, r := range records {
		if r == nil {
			continue
		}
		c := r.clone()
		c.Code = geoid.Canonical(r.Code)
		if c.Code == geoid.Unknown {
			return nil, fmt.Errorf("%w: record code %q", ErrInvalidDataset, r.Code)
		}
		ds.records[c.Code] = c
	}
	hash, err := ds.computeHash()
	if err != nil {
		return nil, err
	}
	ds.hash = hash
	return ds, nil
}

// Empty returns a dataset with no records.
func Empty() *Dataset {
	ds, _ := New(Meta{})
	return ds
}

// Lookup returns the record for a canonical code.
func (d *Dataset) Lookup(code string) (*Record, bool) {
	if d == nil {
		return nil, false
	}
	r, ok := d.records[code]
	return r, ok
}

// Jurisdiction returns the jurisdiction-scoped record for a canonical code.
func (d *Dataset) Jurisdiction(code string, j jurisdiction.Code) (*JurisdictionRecord, bool) {
	r, ok := d.Lookup(code)
	if !ok {
		return nil, false
	}
	jr, ok := r.Jurisdictions[j]
	return jr, ok
}

// Codes returns every country code in sorted order.
func (d *Dataset) Codes() []string {
	if d == nil {
		return nil
	}
	out := make([]string, 0, len(d.records))
	for code := range d.records {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// Subcategories lists the subcategory names used under a jurisdiction.
func (d *Dataset) Subcategories(j jurisdiction.Code) []string {
	if d == nil {
		return nil
	}
	seen := make(map[string]bool)
	for _, r := range d.records {
		jr, ok := r.Jurisdictions[j]
		if !ok {
			continue
		}
		for name := range jr.Subcategories {
			seen[name] = true
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of country records.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.records)
}

// Hash is the SHA-256 of the dataset's RFC 8785 canonical JSON form.
func (d *Dataset) Hash() string { return d.hash }

// Meta returns the dataset metadata.
func (d *Dataset) Meta() Meta { return d.meta }

// Version returns the parsed dataset version, or nil when unversioned.
func (d *Dataset) Version() *semver.Version { return d.version }

// Warnings lists the non-fatal problems found while loading.
func (d *Dataset) Warnings() []string {
	return append([]string(nil), d.warnings...)
}

func (d *Dataset) warn(logger *slog.Logger, msg string, args ...any) {
	logger.Warn(msg, args...)
	line := msg
	for i := 0; i+1 < len(args); i += 2 {
		line += fmt.Sprintf(" %v=%v", args[i], args[i+1])
	}
	d.warnings = append(d.warnings, line)
}

// clone returns a deep copy that can be modified before being published.
func (d *Dataset) clone() *Dataset {
	c := &Dataset{
		records: make(map[string]*Record, len(d.records)),
		meta:    d.meta,
		version: d.version,
	}
	for k, v := range d.records {
		c.records[k] = v.clone()
	}
	c.warnings = append(c.warnings, d.warnings...)
	return c
}

// MarshalJSON writes the dataset in the nested file layout, using the
// canonical field names.
func (d *Dataset) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.records)+1)
	if d.meta != (Meta{}) {
		out[MetaKey] = d.meta
	}
	for code, r := range d.records {
		rec := make(map[string]any, len(r.Jurisdictions))
		for j, jr := range r.Jurisdictions {
			m := fieldsMap(&jr.Fields)
			for name, sub := range jr.Subcategories {
				m[name] = fieldsMap(sub)
			}
			rec[string(j)] = m
		}
		out[code] = rec
	}
	return json.Marshal(out)
}

func fieldsMap(f *Fields) map[string]any {
	m := make(map[string]any)
	if f.Score != nil {
		m["score"] = *f.Score
	}
	if f.Risk != nil {
		m["risk"] = *f.Risk
	}
	if f.EO != nil {
		m["eo"] = *f.EO
	}
	if f.Det != nil {
		m["det"] = *f.Det
	}
	if f.Lic != nil {
		m["lic"] = *f.Lic
	}
	if f.Reg != nil {
		m["reg"] = *f.Reg
	}
	if f.URL != nil {
		m["url"] = *f.URL
	}
	if f.Details != nil {
		m["details"] = f.Details
	}
	return m
}

func (d *Dataset) computeHash() (string, error) {
	raw, err := d.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("encode dataset: %w", err)
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize dataset: %w", err)
	}
	sum := sha256.Sum256(canon)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}
