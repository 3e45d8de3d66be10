package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Mindburn-Labs/riskmap/pkg/jurisdiction"
)

// StyleProfile is a named map styling configuration.
type StyleProfile struct {
	Name    string        `yaml:"name" json:"name"`
	Policy  string        `yaml:"policy" json:"policy"` // "continuous" | "buckets" | "categorical"
	Ramp    RampConfig    `yaml:"ramp" json:"ramp"`
	Buckets BucketConfig  `yaml:"buckets,omitempty" json:"buckets,omitempty"`
	Levels  []LevelConfig `yaml:"levels,omitempty" json:"levels,omitempty"`
	Base    StyleConfig   `yaml:"base,omitempty" json:"base,omitempty"`
	NoData  StyleConfig   `yaml:"no_data,omitempty" json:"no_data,omitempty"`
	Rules   []RuleConfig  `yaml:"rules,omitempty" json:"rules,omitempty"`
}

// RampConfig defines the continuous color ramp.
type RampConfig struct {
	Low   string `yaml:"low,omitempty" json:"low,omitempty"`
	High  string `yaml:"high,omitempty" json:"high,omitempty"`
	Space string `yaml:"space,omitempty" json:"space,omitempty"` // "rgb" | "hsl"
}

// BucketConfig defines discrete score buckets.
type BucketConfig struct {
	Bounds  []float64 `yaml:"bounds,omitempty" json:"bounds,omitempty"`
	Palette []string  `yaml:"palette,omitempty" json:"palette,omitempty"`
}

// LevelConfig maps a categorical risk level to a color.
type LevelConfig struct {
	Name  string `yaml:"name" json:"name"`
	Color string `yaml:"color" json:"color"`
}

// StyleConfig overrides parts of a feature style. Unset fields keep the
// defaults.
type StyleConfig struct {
	FillColor    string   `yaml:"fill_color,omitempty" json:"fill_color,omitempty"`
	StrokeColor  string   `yaml:"stroke_color,omitempty" json:"stroke_color,omitempty"`
	StrokeWeight *float64 `yaml:"stroke_weight,omitempty" json:"stroke_weight,omitempty"`
	FillOpacity  *float64 `yaml:"fill_opacity,omitempty" json:"fill_opacity,omitempty"`
}

// RuleConfig is a CEL highlight rule.
type RuleConfig struct {
	Name         string   `yaml:"name" json:"name"`
	When         string   `yaml:"when" json:"when"`
	StrokeColor  string   `yaml:"stroke_color,omitempty" json:"stroke_color,omitempty"`
	StrokeWeight float64  `yaml:"stroke_weight,omitempty" json:"stroke_weight,omitempty"`
	FillOpacity  *float64 `yaml:"fill_opacity,omitempty" json:"fill_opacity,omitempty"`
}

// LoadStyleProfile loads one style profile YAML file.
func LoadStyleProfile(path string) (*StyleProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load style profile %q: %w", path, err)
	}
	return ParseStyleProfile(data, profileName(path))
}

// ParseStyleProfile decodes a profile document. defaultName is used when
// the document carries no name.
func ParseStyleProfile(data []byte, defaultName string) (*StyleProfile, error) {
	var profile StyleProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse style profile %q: %w", defaultName, err)
	}
	if profile.Name == "" {
		profile.Name = defaultName
	}
	profile.Name = strings.ToLower(strings.TrimSpace(profile.Name))
	if profile.Name == "" {
		return nil, fmt.Errorf("style profile has no name")
	}
	return &profile, nil
}

// LoadAllStyleProfiles loads every style_*.yaml file in dir, keyed by
// profile name.
func LoadAllStyleProfiles(dir string) (map[string]*StyleProfile, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "style_*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("glob style profiles: %w", err)
	}
	sort.Strings(matches)

	profiles := make(map[string]*StyleProfile, len(matches))
	for _, path := range matches {
		p, err := LoadStyleProfile(path)
		if err != nil {
			return nil, err
		}
		if _, dup := profiles[p.Name]; dup {
			return nil, fmt.Errorf("duplicate style profile %q in %s", p.Name, path)
		}
		profiles[p.Name] = p
	}
	return profiles, nil
}

// LoadJurisdictions reads a YAML list of jurisdictions that extend or
// override the built-in set.
func LoadJurisdictions(path string) ([]jurisdiction.Jurisdiction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load jurisdictions %q: %w", path, err)
	}
	var out []jurisdiction.Jurisdiction
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse jurisdictions %q: %w", path, err)
	}
	return out, nil
}

func profileName(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return strings.TrimPrefix(base, "style_")
}
