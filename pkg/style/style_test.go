package style_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/riskmap/pkg/config"
	"github.com/Mindburn-Labs/riskmap/pkg/jurisdiction"
	"github.com/Mindburn-Labs/riskmap/pkg/resolver"
	"github.com/Mindburn-Labs/riskmap/pkg/style"
)

func TestRamp_Anchors(t *testing.T) {
	for _, r := range []style.Ramp{style.DefaultRamp(), style.HueRamp()} {
		t.Run(string(r.Space), func(t *testing.T) {
			assert.Equal(t, style.LowAnchor, r.ColorAt(0))
			assert.Equal(t, style.HighAnchor, r.ColorAt(100))
			assert.Equal(t, style.LowAnchor, r.ColorAt(-15), "below range clamps")
			assert.Equal(t, style.HighAnchor, r.ColorAt(250), "above range clamps")
		})
	}
}

func TestRamp_Midpoint(t *testing.T) {
	assert.Equal(t, "rgb(128,128,0)", style.DefaultRamp().ColorAt(50).String())
	assert.Equal(t, "rgb(255,255,0)", style.HueRamp().ColorAt(50).String())
}

func TestRamp_ValidateSpace(t *testing.T) {
	r := style.DefaultRamp()
	r.Space = "lab"
	assert.Error(t, r.Validate())
}

// TestRampMonotonic_Property checks that a higher score never looks less
// risky: red never decreases and green never increases.
func TestRampMonotonic_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	for _, ramp := range []style.Ramp{style.DefaultRamp(), style.HueRamp()} {
		ramp := ramp
		properties.Property(string(ramp.Space)+" ramp is monotonic", prop.ForAll(
			func(a, b float64) bool {
				if a > b {
					a, b = b, a
				}
				lo, hi := ramp.ColorAt(a), ramp.ColorAt(b)
				return lo.R <= hi.R && lo.G >= hi.G
			},
			gen.Float64Range(-10, 110),
			gen.Float64Range(-10, 110),
		))
	}

	properties.TestingRun(t)
}

func TestBuckets_TiesGoUp(t *testing.T) {
	b := style.DefaultBuckets(style.DefaultRamp())
	require.NoError(t, b.Validate())

	cases := []struct {
		score float64
		want  int
	}{
		{-5, 0},
		{0, 0},
		{19.99, 0},
		{20, 1},
		{59.5, 2},
		{60, 3},
		{99.9, 4},
		{100, 5},
		{140, 5},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, b.Index(tc.score), "score %v", tc.score)
	}
	assert.Equal(t, style.HighAnchor, b.ColorAt(100))
}

func TestBuckets_Validate(t *testing.T) {
	assert.Error(t, style.Buckets{}.Validate())
	assert.Error(t, style.Buckets{Bounds: []float64{0, 50, 50}, Palette: make([]style.Color, 3)}.Validate())
	assert.Error(t, style.Buckets{Bounds: []float64{0, 50}, Palette: make([]style.Color, 1)}.Validate())
}

func TestBuckets_Labels(t *testing.T) {
	b := style.Buckets{Bounds: []float64{0, 12.5, 80}}
	assert.Equal(t, "0–12.5", b.Label(0))
	assert.Equal(t, "12.5–80", b.Label(1))
	assert.Equal(t, "80+", b.Label(2))
}

func TestMapper_NoDataDistinctFromZero(t *testing.T) {
	m := style.NewMapper()
	require.NoError(t, m.Validate())

	zero := m.StyleFor(resolver.View{Code: "NOR", Score: 0, HasData: true, HasScore: true})
	none := m.StyleFor(resolver.View{Code: "ZZZ", Risk: resolver.NoRisk})

	assert.Equal(t, style.DefaultNoData(), none)
	assert.Equal(t, style.LowAnchor.String(), zero.FillColor)
	assert.NotEqual(t, zero, none)
	assert.Equal(t, none, m.StyleForScore(0, false))
}

func TestMapper_LabelWithoutScore(t *testing.T) {
	labelled := resolver.View{Code: "IRN", Risk: "high", HasData: true}
	zero := resolver.View{Code: "NOR", Risk: "low", HasData: true, HasScore: true}
	unlabelled := resolver.View{Code: "CUB", Risk: "severe", HasData: true}

	for _, policy := range []style.Policy{style.PolicyContinuous, style.PolicyBuckets, style.PolicyCategorical} {
		m := style.NewMapper()
		m.Policy = policy
		require.NoError(t, m.Validate())

		high := m.StyleFor(labelled)
		assert.Equal(t, "rgb(215,25,28)", high.FillColor, policy)
		assert.NotEqual(t, m.StyleFor(zero), high, policy)
		assert.Equal(t, m.NoData, m.StyleFor(unlabelled), policy)
	}
}

func TestMapper_ValidateRejectsNoDataCollision(t *testing.T) {
	m := style.NewMapper()
	m.NoData = m.StyleForScore(0, true)
	assert.Error(t, m.Validate())

	m = style.NewMapper()
	m.Policy = "heatmap"
	assert.Error(t, m.Validate())

	m = style.NewMapper()
	m.Base.FillOpacity = 1.5
	assert.Error(t, m.Validate())
}

func TestMapper_Categorical(t *testing.T) {
	m := style.NewMapper()
	m.Policy = style.PolicyCategorical
	require.NoError(t, m.Validate())

	high := m.StyleFor(resolver.View{Score: 10, Risk: " HIGH ", HasData: true, HasScore: true})
	assert.Equal(t, "rgb(215,25,28)", high.FillColor, "level wins over score")

	unknown := m.StyleFor(resolver.View{Score: 100, Risk: "severe", HasData: true, HasScore: true})
	assert.Equal(t, m.Buckets.ColorAt(100).String(), unknown.FillColor)

	none := m.StyleFor(resolver.View{Risk: "high"})
	assert.Equal(t, m.NoData, none)
}

func TestMapper_BucketPolicy(t *testing.T) {
	m := style.NewMapper()
	m.Policy = style.PolicyBuckets
	require.NoError(t, m.Validate())

	s := m.StyleForScore(40, true)
	assert.Equal(t, m.Buckets.Palette[2].String(), s.FillColor)
	assert.Equal(t, 0.7, s.FillOpacity)
}

func TestLegend(t *testing.T) {
	m := style.NewMapper()
	legend := m.Legend()
	require.Len(t, legend, len(style.DefaultBounds)+1)
	assert.Equal(t, "0–20", legend[0].Label)
	assert.Equal(t, "100+", legend[len(legend)-2].Label)
	assert.Equal(t, style.HighAnchor.String(), legend[len(legend)-2].Color)

	last := legend[len(legend)-1]
	assert.True(t, last.NoData)
	assert.Equal(t, style.NoDataLabel, last.Label)

	m.Policy = style.PolicyCategorical
	legend = m.Legend()
	require.Len(t, legend, 4)
	assert.Equal(t, "high", legend[0].Label)
}

func TestRules(t *testing.T) {
	opacity := 1.0
	rules, err := style.CompileRules([]style.RuleSpec{
		{Name: "busy", When: "eo + det > 10", StrokeColor: "black", StrokeWeight: 3},
		{Name: "eu-critical", When: `jurisdiction == "EU" && score >= 90`, FillOpacity: &opacity},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, rules.Len())

	m := style.NewMapper()
	m.Rules = rules

	busy := m.StyleFor(resolver.View{Code: "IRN", Jurisdiction: jurisdiction.US, Score: 50, EO: 8, Det: 4, HasData: true, HasScore: true})
	assert.Equal(t, "rgb(0,0,0)", busy.StrokeColor)
	assert.Equal(t, 3.0, busy.StrokeWeight)
	assert.Equal(t, 0.7, busy.FillOpacity)

	critical := m.StyleFor(resolver.View{Code: "RUS", Jurisdiction: jurisdiction.EU, Score: 95, HasData: true, HasScore: true})
	assert.Equal(t, 1.0, critical.FillOpacity)
	assert.Equal(t, style.DefaultBase().StrokeColor, critical.StrokeColor)

	quiet := m.StyleFor(resolver.View{Code: "NOR", Jurisdiction: jurisdiction.US, Score: 5, HasData: true, HasScore: true})
	assert.Equal(t, style.DefaultBase().StrokeWeight, quiet.StrokeWeight)
}

func TestCompileRules_Errors(t *testing.T) {
	_, err := style.CompileRules([]style.RuleSpec{{When: "score >"}})
	assert.Error(t, err)

	_, err = style.CompileRules([]style.RuleSpec{{When: "score + 1.0"}})
	assert.ErrorContains(t, err, "boolean")

	_, err = style.CompileRules([]style.RuleSpec{{When: "unknown_var > 1"}})
	assert.Error(t, err)

	_, err = style.CompileRules([]style.RuleSpec{{When: "true", StrokeColor: "not-a-color"}})
	assert.Error(t, err)

	var nilRules *style.Rules
	assert.Equal(t, 0, nilRules.Len())
}

func TestParseColor(t *testing.T) {
	cases := map[string]string{
		"#fff":              "rgb(255,255,255)",
		"#D7191C":           "rgb(215,25,28)",
		" rgb(1, 2, 3) ":    "rgb(1,2,3)",
		"hsl(120,100%,50%)": "rgb(0,255,0)",
		"Lime":              "rgb(0,255,0)",
	}
	for in, want := range cases {
		c, err := style.ParseColor(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, c.String(), in)
	}

	for _, bad := range []string{"", "#12", "rgb(1,2)", "rgb(300,0,0)", "hsl(a,b,c)", "chartreuse-ish"} {
		_, err := style.ParseColor(bad)
		assert.Error(t, err, bad)
	}

	assert.Equal(t, "#00ff00", style.LowAnchor.Hex())
}

func TestColorHSLRoundTrip(t *testing.T) {
	h, s, l := style.RGB(255, 0, 0).HSL()
	assert.InDelta(t, 0, h, 1e-9)
	assert.InDelta(t, 1, s, 1e-9)
	assert.InDelta(t, 0.5, l, 1e-9)
	assert.Equal(t, style.RGB(255, 0, 0), style.HSL(h, s, l))
}

func TestFromProfile(t *testing.T) {
	weight := 2.0
	p := &config.StyleProfile{
		Name:   "print",
		Policy: "Buckets",
		Buckets: config.BucketConfig{
			Bounds:  []float64{0, 50},
			Palette: []string{"#eeeeee", "#333333"},
		},
		NoData: config.StyleConfig{FillColor: "white", StrokeWeight: &weight},
		Rules:  []config.RuleConfig{{Name: "heavy", When: "eo > 10", StrokeWeight: 4}},
	}

	m, err := style.FromProfile(p)
	require.NoError(t, err)
	assert.Equal(t, style.PolicyBuckets, m.Policy)
	assert.Equal(t, "rgb(51,51,51)", m.StyleForScore(50, true).FillColor)
	assert.Equal(t, "rgb(255,255,255)", m.NoData.FillColor)
	assert.Equal(t, 2.0, m.NoData.StrokeWeight)
	assert.Equal(t, 1, m.Rules.Len())
}

func TestFromProfile_BoundsOnlySampleRamp(t *testing.T) {
	m, err := style.FromProfile(&config.StyleProfile{
		Name:    "coarse",
		Policy:  "buckets",
		Ramp:    config.RampConfig{Space: "hsl"},
		Buckets: config.BucketConfig{Bounds: []float64{0, 100}},
	})
	require.NoError(t, err)
	require.Len(t, m.Buckets.Palette, 2)
	assert.Equal(t, style.HueRamp().ColorAt(50), m.Buckets.Palette[0])
	assert.Equal(t, style.HighAnchor, m.Buckets.Palette[1])
}

func TestFromProfile_Errors(t *testing.T) {
	_, err := style.FromProfile(&config.StyleProfile{Name: "x", Ramp: config.RampConfig{Low: "nope"}})
	assert.Error(t, err)

	_, err = style.FromProfile(&config.StyleProfile{Name: "x", Policy: "dots"})
	assert.Error(t, err)

	// A no-data fill equal to the green anchor collides with score 0.
	opacity := 0.7
	_, err = style.FromProfile(&config.StyleProfile{
		Name:   "x",
		NoData: config.StyleConfig{FillColor: "lime", FillOpacity: &opacity},
	})
	assert.Error(t, err)

	m, err := style.FromProfile(nil)
	require.NoError(t, err)
	assert.Equal(t, style.PolicyContinuous, m.Policy)
}

func TestCatalog(t *testing.T) {
	c, err := style.NewCatalog(map[string]*config.StyleProfile{
		"Hue": {Name: "hue", Ramp: config.RampConfig{Space: "hsl"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"default", "hue"}, c.Names())

	m, ok := c.Get("")
	require.True(t, ok)
	assert.Equal(t, style.SpaceRGB, m.Ramp.Space)

	m, ok = c.Get("HUE")
	require.True(t, ok)
	assert.Equal(t, style.SpaceHSL, m.Ramp.Space)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}
