package riskdata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/Mindburn-Labs/riskmap/pkg/geoid"
	"github.com/Mindburn-Labs/riskmap/pkg/jurisdiction"
)

// MetaKey is the reserved top-level key carrying dataset metadata.
const MetaKey = "_meta"

// Field aliases accepted in risk files. The first entry is the canonical
// name written back by Dataset.MarshalJSON.
var (
	scoreKeys   = []string{"score", "riskScore", "risk_score"}
	riskKeys    = []string{"risk", "risk_level"}
	eoKeys      = []string{"eo", "eo_count"}
	detKeys     = []string{"det", "det_count"}
	licKeys     = []string{"lic", "license_count"}
	regKeys     = []string{"reg", "reg_count"}
	urlKeys     = []string{"url", "ofac_url"}
	detailsKeys = []string{"details"}
)

var fieldKeys = func() map[string]bool {
	m := make(map[string]bool)
	for _, group := range [][]string{scoreKeys, riskKeys, eoKeys, detKeys, licKeys, regKeys, urlKeys, detailsKeys} {
		for _, k := range group {
			m[k] = true
		}
	}
	return m
}()

// Options controls how a risk file is interpreted.
type Options struct {
	// Registry recognizes jurisdiction keys. Defaults to jurisdiction.Default().
	Registry *jurisdiction.Registry
	// DefaultJurisdiction receives records in the legacy flat layout, which
	// carry fields directly on the country. Defaults to US.
	DefaultJurisdiction jurisdiction.Code
	// Names resolves record keys that are country names rather than codes,
	// as in files keyed by the shapes' display name.
	Names  geoid.NameIndex
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Registry == nil {
		o.Registry = jurisdiction.Default()
	}
	if o.DefaultJurisdiction == "" {
		o.DefaultJurisdiction = jurisdiction.US
	}
	if o.Logger == nil {
		o.Logger = slog.Default().With("component", "riskdata")
	}
}

// Parse decodes, validates and structures a risk file.
func Parse(data []byte, opts Options) (*Dataset, error) {
	opts.defaults()

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidDataset, err)
	}
	if err := Validate(doc); err != nil {
		return nil, err
	}
	top, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: top level must be an object", ErrInvalidDataset)
	}

	ds := &Dataset{records: make(map[string]*Record, len(top))}

	if raw, ok := top[MetaKey].(map[string]any); ok {
		ds.meta = Meta{
			Version:     stringValue(raw["version"]),
			GeneratedAt: stringValue(raw["generated_at"]),
			Source:      stringValue(raw["source"]),
		}
		if ds.meta.Version != "" {
			v, err := semver.NewVersion(ds.meta.Version)
			if err != nil {
				return nil, fmt.Errorf("%w: _meta.version %q: %v", ErrInvalidDataset, ds.meta.Version, err)
			}
			ds.version = v
		}
	}

	keys := make([]string, 0, len(top))
	for k := range top {
		if k != MetaKey {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, key := range keys {
		obj, _ := top[key].(map[string]any)
		code := geoid.Canonical(key)
		if code == geoid.Unknown {
			ds.warn(opts.Logger, "record key is not a country code", "key", key)
			continue
		}
		if !geoid.IsCode(code) {
			if named, ok := opts.Names.Lookup(key); ok {
				code = named
			} else {
				ds.warn(opts.Logger, "record key is neither a country code nor a known country name", "key", key)
			}
		}
		if _, dup := ds.records[code]; dup {
			ds.warn(opts.Logger, "duplicate country code, keeping first", "key", key, "code", code)
			continue
		}
		ds.records[code] = parseRecord(ds, opts, code, obj)
	}

	hash, err := ds.computeHash()
	if err != nil {
		return nil, err
	}
	ds.hash = hash
	return ds, nil
}

func parseRecord(ds *Dataset, opts Options, code string, obj map[string]any) *Record {
	rec := &Record{Code: code, Jurisdictions: make(map[jurisdiction.Code]*JurisdictionRecord)}

	var jkeys []string
	topLevel := false
	for k, v := range obj {
		if _, isObj := v.(map[string]any); isObj && !fieldKeys[k] {
			if _, err := opts.Registry.Parse(k); err == nil {
				jkeys = append(jkeys, k)
				continue
			}
		}
		if fieldKeys[k] {
			topLevel = true
		}
	}

	if len(jkeys) == 0 {
		rec.Jurisdictions[opts.DefaultJurisdiction] = parseJurisdictionRecord(obj)
		return rec
	}

	if topLevel {
		ds.warn(opts.Logger, "top-level fields ignored on record with jurisdiction entries", "code", code)
	}

	sort.Strings(jkeys)
	for _, k := range jkeys {
		j, _ := opts.Registry.Parse(k)
		if _, dup := rec.Jurisdictions[j]; dup {
			ds.warn(opts.Logger, "duplicate jurisdiction entry, keeping first", "code", code, "key", k)
			continue
		}
		rec.Jurisdictions[j] = parseJurisdictionRecord(obj[k].(map[string]any))
	}
	return rec
}

func parseJurisdictionRecord(obj map[string]any) *JurisdictionRecord {
	jr := &JurisdictionRecord{Fields: parseFields(obj)}
	for k, v := range obj {
		if fieldKeys[k] {
			continue
		}
		sub, ok := v.(map[string]any)
		if !ok {
			continue
		}
		name := strings.TrimSpace(k)
		if name == "" {
			continue
		}
		if jr.Subcategories == nil {
			jr.Subcategories = make(map[string]*Fields)
		}
		f := parseFields(sub)
		jr.Subcategories[name] = &f
	}
	return jr
}

func parseFields(obj map[string]any) Fields {
	var f Fields
	if v, ok := first(obj, scoreKeys); ok {
		if n, ok := number(v); ok {
			f.Score = &n
		}
	}
	if v, ok := first(obj, riskKeys); ok {
		if s := strings.TrimSpace(stringValue(v)); s != "" {
			f.Risk = &s
		}
	}
	f.EO = count(obj, eoKeys)
	f.Det = count(obj, detKeys)
	f.Lic = count(obj, licKeys)
	f.Reg = count(obj, regKeys)
	if v, ok := first(obj, urlKeys); ok {
		if s := strings.TrimSpace(stringValue(v)); s != "" {
			f.URL = &s
		}
	}
	if v, ok := obj["details"].([]any); ok {
		f.Details = make([]Detail, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				f.Details = append(f.Details, parseDetail(m))
			}
		}
	}
	return f
}

func parseDetail(m map[string]any) Detail {
	d := Detail{
		Type:        stringValue(m["type"]),
		Reference:   stringValue(m["reference"]),
		Description: stringValue(m["description"]),
		SourceURL:   stringValue(m["source_url"]),
	}
	switch t := m["targets"].(type) {
	case string:
		d.Targets = t
	case []any:
		parts := make([]string, 0, len(t))
		for _, p := range t {
			if s := stringValue(p); s != "" {
				parts = append(parts, s)
			}
		}
		d.Targets = strings.Join(parts, ", ")
	}
	return d
}

// first returns the first non-null value among keys.
func first(obj map[string]any, keys []string) (any, bool) {
	for _, k := range keys {
		if v, ok := obj[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func count(obj map[string]any, keys []string) *int {
	v, ok := first(obj, keys)
	if !ok {
		return nil
	}
	n, ok := number(v)
	if !ok {
		return nil
	}
	i := int(math.Round(n))
	return &i
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

func stringValue(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	}
	return ""
}
