package style

import (
	"fmt"
	"strings"
)

// DefaultBounds are the lower edges of the default score buckets.
var DefaultBounds = []float64{0, 20, 40, 60, 80, 100}

// Buckets maps scores to a fixed palette. Bounds are ascending lower edges;
// a score equal to an edge belongs to the bucket that starts there.
type Buckets struct {
	Bounds  []float64
	Palette []Color
}

// DefaultBuckets samples ramp at the midpoint of each default bucket. The
// last bucket starts at 100 and takes the high anchor.
func DefaultBuckets(ramp Ramp) Buckets {
	b := Buckets{Bounds: append([]float64(nil), DefaultBounds...)}
	for i := range b.Bounds {
		lo, hi := b.span(i)
		b.Palette = append(b.Palette, ramp.ColorAt((lo+hi)/2))
	}
	return b
}

// Validate checks that bounds ascend strictly and that every bucket has a
// color.
func (b Buckets) Validate() error {
	if len(b.Bounds) == 0 {
		return fmt.Errorf("buckets: no bounds")
	}
	for i := 1; i < len(b.Bounds); i++ {
		if b.Bounds[i] <= b.Bounds[i-1] {
			return fmt.Errorf("buckets: bounds must ascend (%v after %v)", b.Bounds[i], b.Bounds[i-1])
		}
	}
	if len(b.Palette) != len(b.Bounds) {
		return fmt.Errorf("buckets: %d bounds but %d colors", len(b.Bounds), len(b.Palette))
	}
	return nil
}

// Index returns the bucket for a clamped score: the last bucket whose lower
// edge is at or below it. Scores under the first edge use bucket 0.
func (b Buckets) Index(score float64) int {
	s := Clamp(score)
	idx := 0
	for i, edge := range b.Bounds {
		if s >= edge {
			idx = i
		}
	}
	return idx
}

// ColorAt returns the palette color of the score's bucket.
func (b Buckets) ColorAt(score float64) Color {
	if len(b.Palette) == 0 {
		return Color{}
	}
	i := b.Index(score)
	if i >= len(b.Palette) {
		i = len(b.Palette) - 1
	}
	return b.Palette[i]
}

// Label renders bucket i as "lo–hi", or "lo+" for the open top bucket.
func (b Buckets) Label(i int) string {
	lo, hi := b.span(i)
	if i == len(b.Bounds)-1 {
		return fmt.Sprintf("%s+", trimFloat(lo))
	}
	return fmt.Sprintf("%s–%s", trimFloat(lo), trimFloat(hi))
}

func (b Buckets) span(i int) (float64, float64) {
	lo := b.Bounds[i]
	hi := MaxScore
	if i+1 < len(b.Bounds) {
		hi = b.Bounds[i+1]
	}
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

func trimFloat(f float64) string {
	s := fmt.Sprintf("%.2f", f)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// Level is a categorical risk level and its color.
type Level struct {
	Name  string
	Color Color
}

// Levels is an ordered categorical palette, most severe first.
type Levels []Level

// DefaultLevels covers the labels used by analyst risk files.
func DefaultLevels() Levels {
	return Levels{
		{Name: "high", Color: MustParseColor("#d7191c")},
		{Name: "medium", Color: MustParseColor("#fdae61")},
		{Name: "low", Color: MustParseColor("#1a9641")},
	}
}

// Lookup finds a level by name, ignoring case and surrounding space.
func (ls Levels) Lookup(name string) (Color, bool) {
	key := strings.TrimSpace(name)
	for _, l := range ls {
		if strings.EqualFold(l.Name, key) {
			return l.Color, true
		}
	}
	return Color{}, false
}
