package style

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Mindburn-Labs/riskmap/pkg/config"
)

// DefaultProfile is the name of the built-in profile.
const DefaultProfile = "default"

// FromProfile builds and validates a Mapper from a style profile. Unset
// profile fields keep the defaults of NewMapper.
func FromProfile(p *config.StyleProfile) (*Mapper, error) {
	m := NewMapper()
	if p == nil {
		return m, nil
	}

	if p.Policy != "" {
		m.Policy = Policy(strings.ToLower(p.Policy))
	}

	if p.Ramp.Space != "" {
		m.Ramp.Space = Space(strings.ToLower(p.Ramp.Space))
	}
	if p.Ramp.Low != "" {
		c, err := ParseColor(p.Ramp.Low)
		if err != nil {
			return nil, fmt.Errorf("profile %s: ramp.low: %w", p.Name, err)
		}
		m.Ramp.Low = c
	}
	if p.Ramp.High != "" {
		c, err := ParseColor(p.Ramp.High)
		if err != nil {
			return nil, fmt.Errorf("profile %s: ramp.high: %w", p.Name, err)
		}
		m.Ramp.High = c
	}

	switch {
	case len(p.Buckets.Bounds) > 0 && len(p.Buckets.Palette) > 0:
		b := Buckets{Bounds: append([]float64(nil), p.Buckets.Bounds...)}
		for _, s := range p.Buckets.Palette {
			c, err := ParseColor(s)
			if err != nil {
				return nil, fmt.Errorf("profile %s: buckets.palette: %w", p.Name, err)
			}
			b.Palette = append(b.Palette, c)
		}
		m.Buckets = b
	case len(p.Buckets.Bounds) > 0:
		// Bounds without colors: sample the ramp as the defaults do.
		b := Buckets{Bounds: append([]float64(nil), p.Buckets.Bounds...)}
		for i := range b.Bounds {
			lo, hi := b.span(i)
			b.Palette = append(b.Palette, m.Ramp.ColorAt((lo+hi)/2))
		}
		m.Buckets = b
	default:
		m.Buckets = DefaultBuckets(m.Ramp)
	}

	if len(p.Levels) > 0 {
		m.Levels = nil
		for _, l := range p.Levels {
			c, err := ParseColor(l.Color)
			if err != nil {
				return nil, fmt.Errorf("profile %s: level %s: %w", p.Name, l.Name, err)
			}
			m.Levels = append(m.Levels, Level{Name: strings.TrimSpace(l.Name), Color: c})
		}
	}

	var err error
	if m.Base, err = overlay(m.Base, p.Base); err != nil {
		return nil, fmt.Errorf("profile %s: base: %w", p.Name, err)
	}
	if m.NoData, err = overlay(m.NoData, p.NoData); err != nil {
		return nil, fmt.Errorf("profile %s: no_data: %w", p.Name, err)
	}

	specs := make([]RuleSpec, 0, len(p.Rules))
	for _, r := range p.Rules {
		specs = append(specs, RuleSpec{
			Name:         r.Name,
			When:         r.When,
			StrokeColor:  r.StrokeColor,
			StrokeWeight: r.StrokeWeight,
			FillOpacity:  r.FillOpacity,
		})
	}
	if m.Rules, err = CompileRules(specs); err != nil {
		return nil, fmt.Errorf("profile %s: %w", p.Name, err)
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("profile %s: %w", p.Name, err)
	}
	return m, nil
}

func overlay(s Style, c config.StyleConfig) (Style, error) {
	if c.FillColor != "" {
		col, err := ParseColor(c.FillColor)
		if err != nil {
			return s, err
		}
		s.FillColor = col.String()
	}
	if c.StrokeColor != "" {
		col, err := ParseColor(c.StrokeColor)
		if err != nil {
			return s, err
		}
		s.StrokeColor = col.String()
	}
	if c.StrokeWeight != nil {
		s.StrokeWeight = *c.StrokeWeight
	}
	if c.FillOpacity != nil {
		s.FillOpacity = *c.FillOpacity
	}
	return s, nil
}

// Catalog holds the named mappers available to a server.
type Catalog struct {
	mappers map[string]*Mapper
}

// NewCatalog builds a mapper per profile and always provides DefaultProfile.
func NewCatalog(profiles map[string]*config.StyleProfile) (*Catalog, error) {
	c := &Catalog{mappers: map[string]*Mapper{DefaultProfile: NewMapper()}}
	for name, p := range profiles {
		m, err := FromProfile(p)
		if err != nil {
			return nil, err
		}
		c.mappers[strings.ToLower(name)] = m
	}
	return c, nil
}

// Get returns the mapper for a profile name; empty selects DefaultProfile.
func (c *Catalog) Get(name string) (*Mapper, bool) {
	if name == "" {
		name = DefaultProfile
	}
	m, ok := c.mappers[strings.ToLower(name)]
	return m, ok
}

// Names lists the available profiles.
func (c *Catalog) Names() []string {
	out := make([]string, 0, len(c.mappers))
	for name := range c.mappers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
