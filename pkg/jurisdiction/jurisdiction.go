// Package jurisdiction provides the registry of sanctions jurisdictions the
// risk map can be viewed under.
package jurisdiction

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Code identifies a sanctions jurisdiction.
// Examples: "US", "EU", "UK".
type Code string

// Standard jurisdiction codes.
const (
	US Code = "US"
	EU Code = "EU"
	UK Code = "UK"
)

// RegulatorID uniquely identifies the authority publishing a jurisdiction's
// sanctions programs.
type RegulatorID string

// Standard regulators.
const (
	RegulatorOFAC RegulatorID = "US-OFAC" // Office of Foreign Assets Control
	RegulatorEEAS RegulatorID = "EU-EEAS" // European External Action Service
	RegulatorOFSI RegulatorID = "GB-OFSI" // Office of Financial Sanctions Implementation
)

// Counter names carried by risk records.
const (
	CounterEO  = "eo"
	CounterDet = "det"
	CounterLic = "lic"
	CounterReg = "reg"
)

// ErrUnknown is returned when a jurisdiction code is not registered.
var ErrUnknown = errors.New("unknown jurisdiction")

// Jurisdiction describes a jurisdiction and how its records are presented.
type Jurisdiction struct {
	Code      Code        `json:"code" yaml:"code"`
	Name      string      `json:"name" yaml:"name"`
	Regulator RegulatorID `json:"regulator" yaml:"regulator"`
	// Counters lists the counter fields meaningful for this jurisdiction.
	Counters []string `json:"counters" yaml:"counters"`
	// URLTemplate builds the default per-country URL. The placeholders
	// {code} and {code_lower} expand to the country code.
	URLTemplate string `json:"url_template" yaml:"url_template"`
}

// CountryURL expands the URL template for a canonical country code.
func (j Jurisdiction) CountryURL(country string) string {
	if j.URLTemplate == "" || country == "" {
		return ""
	}
	r := strings.NewReplacer(
		"{code}", strings.ToUpper(country),
		"{code_lower}", strings.ToLower(country),
	)
	return r.Replace(j.URLTemplate)
}

// Defaults returns the built-in jurisdictions.
func Defaults() []Jurisdiction {
	return []Jurisdiction{
		{
			Code:        US,
			Name:        "United States",
			Regulator:   RegulatorOFAC,
			Counters:    []string{CounterEO, CounterDet, CounterLic},
			URLTemplate: "https://ofac.treasury.gov/sanctions-programs-and-country-information?country={code}",
		},
		{
			Code:        EU,
			Name:        "European Union",
			Regulator:   RegulatorEEAS,
			Counters:    []string{CounterReg},
			URLTemplate: "https://www.sanctionsmap.eu/#/main/details/{code_lower}",
		},
		{
			Code:        UK,
			Name:        "United Kingdom",
			Regulator:   RegulatorOFSI,
			Counters:    []string{CounterReg},
			URLTemplate: "https://www.gov.uk/government/collections/uk-sanctions-regimes?country={code}",
		},
	}
}

var aliases = map[string]Code{
	"GB":  UK,
	"USA": US,
}

// Registry holds the known jurisdictions. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	byKey map[Code]Jurisdiction
}

// NewRegistry creates a registry pre-loaded with the default jurisdictions.
func NewRegistry() *Registry {
	r := &Registry{byKey: make(map[Code]Jurisdiction)}
	for _, j := range Defaults() {
		r.byKey[j.Code] = j
	}
	return r
}

// Register adds or replaces a jurisdiction.
func (r *Registry) Register(j Jurisdiction) error {
	code := Code(strings.ToUpper(strings.TrimSpace(string(j.Code))))
	if code == "" {
		return fmt.Errorf("jurisdiction code is required")
	}
	j.Code = code
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byKey[code] = j
	return nil
}

// Lookup returns the jurisdiction for a code.
func (r *Registry) Lookup(code Code) (Jurisdiction, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.byKey[code]
	return j, ok
}

// All returns every registered jurisdiction sorted by code.
func (r *Registry) All() []Jurisdiction {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Jurisdiction, 0, len(r.byKey))
	for _, j := range r.byKey {
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Code < out[k].Code })
	return out
}

// Parse resolves user input (any casing, aliases such as GB) to a
// registered code.
func (r *Registry) Parse(s string) (Code, error) {
	key := strings.ToUpper(strings.TrimSpace(s))
	if alias, ok := aliases[key]; ok {
		key = string(alias)
	}
	r.mu.RLock()
	_, ok := r.byKey[Code(key)]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknown, s)
	}
	return Code(key), nil
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry holding the built-in set.
func Default() *Registry { return defaultRegistry }

// Parse resolves s against the default registry.
func Parse(s string) (Code, error) {
	return defaultRegistry.Parse(s)
}
