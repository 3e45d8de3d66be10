// Package geoid normalizes the identifiers found on geographic features
// (Natural Earth, world-atlas and similar GeoJSON sources) to canonical
// 3-letter country codes.
package geoid

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Unknown is returned when no identifier field carries a usable value.
const Unknown = "UNKNOWN"

// placeholder is the Natural Earth marker for "no code assigned".
const placeholder = "-99"

// DefaultFields is the priority-ordered list of identifier fields probed on
// every feature. Matching is case-insensitive.
var DefaultFields = []string{
	"ISO_A3",
	"ADM0_A3",
	"ISO3",
	"ISO_A3_EH",
	"SOV_A3",
	"GU_A3",
	"ADM0_ISO",
	"id",
}

// DefaultNameFields lists display-name fields, most specific first.
var DefaultNameFields = []string{
	"ADMIN",
	"NAME",
	"NAME_LONG",
	"name",
}

// Normalizer maps feature properties to canonical codes.
// A Normalizer is immutable and safe for concurrent use.
type Normalizer struct {
	fields     []string
	nameFields []string
	names      NameIndex
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithFields replaces the identifier probe list.
func WithFields(fields ...string) Option {
	return func(n *Normalizer) { n.fields = append([]string(nil), fields...) }
}

// WithNameFields replaces the display-name probe list.
func WithNameFields(fields ...string) Option {
	return func(n *Normalizer) { n.nameFields = append([]string(nil), fields...) }
}

// WithNameIndex enables the legacy fallback that resolves a feature by its
// display name when it carries no code field.
func WithNameIndex(idx NameIndex) Option {
	return func(n *Normalizer) { n.names = idx }
}

// New creates a Normalizer.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		fields:     DefaultFields,
		nameFields: DefaultNameFields,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

var defaultNormalizer = New()

// NormalizeID returns the canonical code for a feature's properties using
// the default field list, or Unknown.
func NormalizeID(props map[string]any) string {
	return defaultNormalizer.Normalize(props)
}

// DisplayName returns the feature's display name using the default name
// fields, or an empty string.
func DisplayName(props map[string]any) string {
	return defaultNormalizer.DisplayName(props)
}

// Normalize returns the canonical code for props, or Unknown.
func (n *Normalizer) Normalize(props map[string]any) string {
	for _, field := range n.fields {
		if v, ok := lookup(props, field); ok {
			return Canonical(v)
		}
	}
	if len(n.names) > 0 {
		for _, field := range n.nameFields {
			v, ok := lookup(props, field)
			if !ok {
				continue
			}
			if code, ok := n.names.Lookup(v); ok {
				return code
			}
		}
	}
	return Unknown
}

// DisplayName returns the first non-empty display-name field.
func (n *Normalizer) DisplayName(props map[string]any) string {
	for _, field := range n.nameFields {
		if v, ok := lookup(props, field); ok {
			return norm.NFC.String(v)
		}
	}
	return ""
}

// Canonical canonicalizes a raw code: trimmed, NFC, upper case.
// Empty input and the "-99" placeholder yield Unknown.
func Canonical(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" || s == placeholder {
		return Unknown
	}
	return cases.Upper(language.Und).String(norm.NFC.String(s))
}

// IsCode reports whether s is a canonical three-letter code.
func IsCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	return true
}

// lookup finds field in props ignoring case. An exact-case key wins; among
// other case variants the lexicographically smallest key with a usable value
// wins so the result does not depend on map iteration order.
func lookup(props map[string]any, field string) (string, bool) {
	if v, ok := usable(props[field]); ok {
		return v, true
	}
	var variants []string
	for k := range props {
		if k != field && strings.EqualFold(k, field) {
			variants = append(variants, k)
		}
	}
	sort.Strings(variants)
	for _, k := range variants {
		if v, ok := usable(props[k]); ok {
			return v, true
		}
	}
	return "", false
}

func usable(v any) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	if s == "" || s == placeholder {
		return "", false
	}
	return s, true
}
