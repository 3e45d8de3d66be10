package style

import (
	"fmt"

	"github.com/Mindburn-Labs/riskmap/pkg/resolver"
)

// Style is the visual descriptor of one map feature. JSON names follow the
// path options of the browser map library.
type Style struct {
	FillColor    string  `json:"fillColor"`
	StrokeColor  string  `json:"color"`
	StrokeWeight float64 `json:"weight"`
	FillOpacity  float64 `json:"fillOpacity"`
}

// Policy selects how a score or level becomes a fill color.
type Policy string

const (
	PolicyContinuous  Policy = "continuous"
	PolicyBuckets     Policy = "buckets"
	PolicyCategorical Policy = "categorical"
)

// Mapper turns resolved views into styles. A Mapper is read-only after
// construction and safe for concurrent use.
type Mapper struct {
	Policy  Policy
	Ramp    Ramp
	Buckets Buckets
	Levels  Levels
	// Base supplies stroke and opacity for countries with data.
	Base Style
	// NoData is used whenever a view has no data.
	NoData Style
	Rules  *Rules
}

// DefaultBase is the outline and opacity of rated countries.
func DefaultBase() Style {
	return Style{StrokeColor: RGB(255, 255, 255).String(), StrokeWeight: 1, FillOpacity: 0.7}
}

// DefaultNoData is the neutral style of countries without data.
func DefaultNoData() Style {
	return Style{
		FillColor:    RGB(204, 204, 204).String(),
		StrokeColor:  RGB(255, 255, 255).String(),
		StrokeWeight: 1,
		FillOpacity:  0.4,
	}
}

// NewMapper returns a continuous green-to-red mapper.
func NewMapper() *Mapper {
	ramp := DefaultRamp()
	return &Mapper{
		Policy:  PolicyContinuous,
		Ramp:    ramp,
		Buckets: DefaultBuckets(ramp),
		Levels:  DefaultLevels(),
		Base:    DefaultBase(),
		NoData:  DefaultNoData(),
	}
}

// Validate checks the mapper's configuration, including that the no-data
// style can never be mistaken for a real score of zero.
func (m *Mapper) Validate() error {
	switch m.Policy {
	case PolicyContinuous, PolicyBuckets, PolicyCategorical:
	default:
		return fmt.Errorf("unknown style policy %q", m.Policy)
	}
	if err := m.Ramp.Validate(); err != nil {
		return err
	}
	if m.Policy == PolicyBuckets || len(m.Buckets.Bounds) > 0 {
		if err := m.Buckets.Validate(); err != nil {
			return err
		}
	}
	for _, s := range []Style{m.Base, m.NoData} {
		if s.FillOpacity < 0 || s.FillOpacity > 1 {
			return fmt.Errorf("fill opacity %v outside [0,1]", s.FillOpacity)
		}
		if s.StrokeWeight < 0 {
			return fmt.Errorf("negative stroke weight %v", s.StrokeWeight)
		}
	}
	if m.NoData == m.StyleForScore(0, true) {
		return fmt.Errorf("no-data style is identical to the score-0 style")
	}
	if m.Policy == PolicyCategorical {
		for _, l := range m.Levels {
			if m.NoData == m.withFill(l.Color) {
				return fmt.Errorf("no-data style is identical to level %q", l.Name)
			}
		}
	}
	return nil
}

// StyleFor styles a resolved view. A view rated only by a label is colored
// from the level palette under every policy; with neither a score nor a
// known label it gets the no-data style.
func (m *Mapper) StyleFor(v resolver.View) Style {
	var s Style
	switch {
	case !v.HasData:
		s = m.NoData
	case m.Policy == PolicyCategorical:
		s = m.fillOrNoData(m.levelColor(v.Risk, v.Score, v.HasScore))
	case v.HasScore:
		s = m.StyleForScore(v.Score, true)
	default:
		s = m.fillOrNoData(m.Levels.Lookup(v.Risk))
	}
	return m.Rules.Apply(v, s)
}

// StyleForScore styles a bare score. Rules are not applied.
func (m *Mapper) StyleForScore(score float64, hasData bool) Style {
	if !hasData {
		return m.NoData
	}
	if m.Policy == PolicyBuckets {
		return m.withFill(m.Buckets.ColorAt(score))
	}
	return m.withFill(m.Ramp.ColorAt(score))
}

// levelColor maps a categorical label. Labels outside the palette fall back
// to the score: buckets when configured, the ramp otherwise. Without a
// score there is nothing to fall back to.
func (m *Mapper) levelColor(level string, score float64, hasScore bool) (Color, bool) {
	if c, ok := m.Levels.Lookup(level); ok {
		return c, true
	}
	if !hasScore {
		return Color{}, false
	}
	if len(m.Buckets.Palette) > 0 {
		return m.Buckets.ColorAt(score), true
	}
	return m.Ramp.ColorAt(score), true
}

func (m *Mapper) fillOrNoData(c Color, ok bool) Style {
	if !ok {
		return m.NoData
	}
	return m.withFill(c)
}

func (m *Mapper) withFill(c Color) Style {
	s := m.Base
	s.FillColor = c.String()
	return s
}
