package style

import (
	"fmt"
	"math"
)

// Score bounds of the ramp.
const (
	MinScore = 0.0
	MaxScore = 100.0
)

// Space selects the interpolation space of a Ramp.
type Space string

const (
	// SpaceRGB blends each channel linearly between the anchors.
	SpaceRGB Space = "rgb"
	// SpaceHSL rotates hue, saturation and lightness linearly between the
	// anchors. With green and red anchors the hue runs 120° to 0°.
	SpaceHSL Space = "hsl"
)

// Ramp is a continuous color scale over [MinScore, MaxScore].
type Ramp struct {
	Low   Color
	High  Color
	Space Space
}

// Default anchors: pure green for the lowest risk, pure red for the highest.
var (
	LowAnchor  = RGB(0, 255, 0)
	HighAnchor = RGB(255, 0, 0)
)

// DefaultRamp blends green to red in RGB.
func DefaultRamp() Ramp {
	return Ramp{Low: LowAnchor, High: HighAnchor, Space: SpaceRGB}
}

// HueRamp rotates hue from 120° to 0° at full saturation.
func HueRamp() Ramp {
	return Ramp{Low: LowAnchor, High: HighAnchor, Space: SpaceHSL}
}

// Validate checks the interpolation space.
func (r Ramp) Validate() error {
	switch r.Space {
	case SpaceRGB, SpaceHSL:
		return nil
	}
	return fmt.Errorf("unknown ramp space %q", r.Space)
}

// ColorAt maps a score to a color. Scores are clamped to [0,100]; the
// endpoints return the anchors exactly.
func (r Ramp) ColorAt(score float64) Color {
	t := Clamp(score) / MaxScore
	if t <= 0 {
		return r.Low
	}
	if t >= 1 {
		return r.High
	}
	if r.Space == SpaceHSL {
		h1, s1, l1 := r.Low.HSL()
		h2, s2, l2 := r.High.HSL()
		return HSL(lerp(h1, h2, t), lerp(s1, s2, t), lerp(l1, l2, t))
	}
	return Color{
		R: lerp8(r.Low.R, r.High.R, t),
		G: lerp8(r.Low.G, r.High.G, t),
		B: lerp8(r.Low.B, r.High.B, t),
	}
}

// Clamp limits a score to [MinScore, MaxScore]. NaN maps to MinScore.
func Clamp(score float64) float64 {
	if math.IsNaN(score) || score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}

func lerp(a, b, t float64) float64 { return a + (b-a)*t }

func lerp8(a, b uint8, t float64) uint8 {
	return uint8(math.Round(lerp(float64(a), float64(b), t)))
}
