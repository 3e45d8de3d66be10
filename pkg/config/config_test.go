package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/riskmap/pkg/config"
	"github.com/Mindburn-Labs/riskmap/pkg/jurisdiction"
)

// TestLoad_Defaults verifies that Load() boots a local lite-mode server
// when no environment variables are set.
func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "LOG_LEVEL", "DATABASE_URL", "CACHE_TTL", "RATE_LIMIT_RPS", "CORS_ORIGINS", "OTEL_ENABLED", "ADMIN_PASS_HASH", "AUTH_HMAC_SECRET"} {
		t.Setenv(k, "")
	}

	cfg := config.Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.True(t, cfg.LiteMode())
	assert.Equal(t, 10*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 20, cfg.RateLimitRPS)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, "US", cfg.DefaultJurisdiction)
	assert.False(t, cfg.OTelEnabled)
	assert.False(t, cfg.AdminEnabled())
}

// TestLoad_Overrides verifies that environment variables override defaults.
func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://riskmap@db:5432/riskmap")
	t.Setenv("RISK_URL", "s3://risk-bucket/riskData.json")
	t.Setenv("CACHE_TTL", "90s")
	t.Setenv("RATE_LIMIT_RPS", "bogus")
	t.Setenv("CORS_ORIGINS", "https://map.example.org, https://intranet.example.org,")
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("ADMIN_PASS_HASH", "$2a$10$abc")
	t.Setenv("AUTH_HMAC_SECRET", "secret")

	cfg := config.Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.False(t, cfg.LiteMode())
	assert.Equal(t, "s3://risk-bucket/riskData.json", cfg.RiskURL)
	assert.Equal(t, 90*time.Second, cfg.CacheTTL)
	assert.Equal(t, 20, cfg.RateLimitRPS, "invalid numbers fall back to the default")
	assert.Equal(t, []string{"https://map.example.org", "https://intranet.example.org"}, cfg.CORSOrigins)
	assert.True(t, cfg.OTelEnabled)
	assert.True(t, cfg.AdminEnabled())
}

func TestLoadAllStyleProfiles(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
	}
	write("style_default.yaml", "policy: continuous\nramp:\n  space: hsl\n")
	write("style_print.yaml", `
name: Print
policy: buckets
buckets:
  bounds: [0, 50]
  palette: ["#eeeeee", "#333333"]
no_data:
  fill_color: white
  fill_opacity: 0
rules:
  - name: heavy
    when: eo > 10
    stroke_color: black
    stroke_weight: 3
`)
	write("ignored.yaml", "policy: nope\n")

	profiles, err := config.LoadAllStyleProfiles(dir)
	require.NoError(t, err)
	require.Len(t, profiles, 2)

	def := profiles["default"]
	require.NotNil(t, def)
	assert.Equal(t, "hsl", def.Ramp.Space)

	printProfile := profiles["print"]
	require.NotNil(t, printProfile)
	assert.Equal(t, []float64{0, 50}, printProfile.Buckets.Bounds)
	require.NotNil(t, printProfile.NoData.FillOpacity)
	assert.Equal(t, 0.0, *printProfile.NoData.FillOpacity)
	require.Len(t, printProfile.Rules, 1)
	assert.Equal(t, "eo > 10", printProfile.Rules[0].When)
}

func TestLoadAllStyleProfiles_Duplicate(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "style_a.yaml"), []byte("name: same\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "style_b.yaml"), []byte("name: same\n"), 0o600))

	_, err := config.LoadAllStyleProfiles(dir)
	assert.Error(t, err)
}

func TestLoadStyleProfile_Errors(t *testing.T) {
	_, err := config.LoadStyleProfile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = config.ParseStyleProfile([]byte("policy: [unclosed"), "x")
	assert.Error(t, err)
}

func TestLoadJurisdictions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jurisdictions.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- code: UN
  name: United Nations
  regulator: GLOBAL-UNSC
  counters: [reg]
  url_template: https://main.un.org/securitycouncil/sanctions/{code_lower}
`), 0o600))

	js, err := config.LoadJurisdictions(path)
	require.NoError(t, err)
	require.Len(t, js, 1)
	assert.Equal(t, jurisdiction.Code("UN"), js[0].Code)
	assert.Equal(t, jurisdiction.RegulatorID("GLOBAL-UNSC"), js[0].Regulator)
	assert.Equal(t, []string{"reg"}, js[0].Counters)
}
