package geoid

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// NameIndex maps case-folded country names to canonical codes.
type NameIndex map[string]string

// FoldName produces the lookup key used by NameIndex.
func FoldName(name string) string {
	s := norm.NFC.String(strings.TrimSpace(name))
	return cases.Fold().String(strings.Join(strings.Fields(s), " "))
}

// Add records name as an alias of code. Empty names and Unknown codes are
// ignored; the first code registered for a name is kept.
func (idx NameIndex) Add(name, code string) {
	key := FoldName(name)
	if key == "" || code == "" || code == Unknown {
		return
	}
	if _, exists := idx[key]; !exists {
		idx[key] = code
	}
}

// Lookup returns the code registered for name.
func (idx NameIndex) Lookup(name string) (string, bool) {
	code, ok := idx[FoldName(name)]
	return code, ok
}

// IndexFeatures builds a NameIndex from feature properties: every display
// name of a feature with a resolvable code becomes an alias of that code.
func (n *Normalizer) IndexFeatures(features []map[string]any) NameIndex {
	idx := make(NameIndex)
	plain := &Normalizer{fields: n.fields, nameFields: n.nameFields}
	for _, props := range features {
		code := plain.Normalize(props)
		if code == Unknown {
			continue
		}
		for _, field := range n.nameFields {
			if v, ok := lookup(props, field); ok {
				idx.Add(v, code)
			}
		}
	}
	return idx
}

// NewNameIndex indexes features with the default field order.
func NewNameIndex(features []map[string]any) NameIndex {
	return New().IndexFeatures(features)
}
