package style

// LegendEntry is one swatch of the map legend.
type LegendEntry struct {
	Label  string `json:"label"`
	Color  string `json:"color"`
	NoData bool   `json:"noData,omitempty"`
}

// NoDataLabel names the no-data swatch.
const NoDataLabel = "No data"

// Legend lists the swatches of the active policy followed by the no-data
// swatch. Continuous ramps are summarized at the midpoints of the default
// buckets.
func (m *Mapper) Legend() []LegendEntry {
	var out []LegendEntry
	switch m.Policy {
	case PolicyCategorical:
		for _, l := range m.Levels {
			out = append(out, LegendEntry{Label: l.Name, Color: l.Color.String()})
		}
	case PolicyBuckets:
		for i, c := range m.Buckets.Palette {
			if i >= len(m.Buckets.Bounds) {
				break
			}
			out = append(out, LegendEntry{Label: m.Buckets.Label(i), Color: c.String()})
		}
	default:
		grades := Buckets{Bounds: DefaultBounds}
		for i := range grades.Bounds {
			lo, hi := grades.span(i)
			out = append(out, LegendEntry{
				Label: grades.Label(i),
				Color: m.Ramp.ColorAt((lo + hi) / 2).String(),
			})
		}
	}
	return append(out, LegendEntry{Label: NoDataLabel, Color: m.NoData.FillColor, NoData: true})
}
