package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds server configuration.
type Config struct {
	Port        string
	LogLevel    string
	DatabaseURL string // empty selects lite mode (SQLite under DataDir)
	DataDir     string

	ShapesURL  string
	RiskURL    string
	MetricsURL string // optional

	StyleProfile      string // optional YAML file or directory of profiles
	JurisdictionsFile string // optional YAML list of extra jurisdictions

	DefaultJurisdiction string

	RedisAddr string
	CacheTTL  time.Duration

	RateLimitRPS   int
	RateLimitBurst int
	CORSOrigins    []string

	AdminUser      string
	AdminPassHash  string
	AuthHMACSecret string

	OTelEnabled  bool
	OTelEndpoint string

	S3Region   string
	S3Endpoint string
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		Port:        envOr("PORT", "8080"),
		LogLevel:    envOr("LOG_LEVEL", "INFO"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		DataDir:     envOr("DATA_DIR", "data"),

		ShapesURL:  envOr("SHAPES_URL", "data/custom.geo.json"),
		RiskURL:    envOr("RISK_URL", "data/riskData.json"),
		MetricsURL: os.Getenv("METRICS_URL"),

		StyleProfile:      os.Getenv("STYLE_PROFILE"),
		JurisdictionsFile: os.Getenv("JURISDICTIONS_FILE"),

		DefaultJurisdiction: envOr("DEFAULT_JURISDICTION", "US"),

		RedisAddr: os.Getenv("REDIS_ADDR"),
		CacheTTL:  envDuration("CACHE_TTL", 10*time.Minute),

		RateLimitRPS:   envInt("RATE_LIMIT_RPS", 20),
		RateLimitBurst: envInt("RATE_LIMIT_BURST", 40),
		CORSOrigins:    csvOr("CORS_ORIGINS", []string{"*"}),

		AdminUser:      envOr("ADMIN_USER", "admin"),
		AdminPassHash:  os.Getenv("ADMIN_PASS_HASH"),
		AuthHMACSecret: os.Getenv("AUTH_HMAC_SECRET"),

		OTelEnabled:  os.Getenv("OTEL_ENABLED") == "true",
		OTelEndpoint: envOr("OTEL_ENDPOINT", "localhost:4317"),

		S3Region:   envOr("S3_REGION", "us-east-1"),
		S3Endpoint: os.Getenv("S3_ENDPOINT"),
	}
}

// LiteMode reports whether no external database is configured.
func (c *Config) LiteMode() bool { return c.DatabaseURL == "" }

// AdminEnabled reports whether the admin endpoints can issue tokens.
func (c *Config) AdminEnabled() bool {
	return c.AdminPassHash != "" && c.AuthHMACSecret != ""
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return def
	}
	return d
}

func csvOr(key string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
