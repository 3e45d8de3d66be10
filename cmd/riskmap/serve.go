package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Mindburn-Labs/riskmap/pkg/api"
	"github.com/Mindburn-Labs/riskmap/pkg/cache"
	"github.com/Mindburn-Labs/riskmap/pkg/config"
	"github.com/Mindburn-Labs/riskmap/pkg/jurisdiction"
	"github.com/Mindburn-Labs/riskmap/pkg/mapservice"
	"github.com/Mindburn-Labs/riskmap/pkg/observability"
	"github.com/Mindburn-Labs/riskmap/pkg/snapshot"
	"github.com/Mindburn-Labs/riskmap/pkg/sources"
	"github.com/Mindburn-Labs/riskmap/pkg/style"
)

func runServer(stdout, stderr io.Writer) int {
	cfg := config.Load()
	logger := newLogger(stderr, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(stdout, "riskmap %s starting...\n", version)
	if err := serve(ctx, cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		return 1
	}
	return 0
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	registry, err := loadRegistry(cfg.JurisdictionsFile)
	if err != nil {
		return err
	}
	defJ, err := registry.Parse(cfg.DefaultJurisdiction)
	if err != nil {
		return fmt.Errorf("DEFAULT_JURISDICTION: %w", err)
	}
	styles, err := loadStyles(cfg.StyleProfile)
	if err != nil {
		return err
	}

	otelCfg := observability.DefaultConfig()
	otelCfg.ServiceVersion = version
	otelCfg.Enabled = cfg.OTelEnabled
	otelCfg.OTLPEndpoint = cfg.OTelEndpoint
	otelCfg.Insecure = true
	telemetry, err := observability.New(ctx, otelCfg)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetry.Shutdown(sctx)
	}()

	store, db, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	mapCache, closeCache := openCache(ctx, cfg, logger)
	defer closeCache()

	svc := mapservice.New(mapservice.Options{
		Fetcher:             newFetcher(cfg),
		Locations:           sources.Locations{Shapes: cfg.ShapesURL, Risk: cfg.RiskURL, Metrics: cfg.MetricsURL},
		Registry:            registry,
		DefaultJurisdiction: defJ,
		Styles:              styles,
		Store:               store,
		Cache:               mapCache,
		CacheTTL:            cfg.CacheTTL,
		Telemetry:           telemetry,
		Logger:              logger.With("component", "mapservice"),
	})
	if _, err := svc.Load(ctx); err != nil {
		return fmt.Errorf("initial load: %w", err)
	}

	var auth *api.Authenticator
	if cfg.AdminEnabled() {
		auth = api.NewAuthenticator(cfg.AdminUser, cfg.AdminPassHash, cfg.AuthHMACSecret, time.Hour)
	} else {
		logger.Warn("admin endpoints disabled: ADMIN_PASS_HASH or AUTH_HMAC_SECRET not set")
	}

	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: api.NewRouter(api.Options{
			Service:             svc,
			Auth:                auth,
			Limiter:             api.NewGlobalRateLimiter(ctx, cfg.RateLimitRPS, cfg.RateLimitBurst),
			CORSOrigins:         cfg.CORSOrigins,
			DefaultJurisdiction: defJ,
			Logger:              logger.With("component", "api"),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr, "lite_mode", cfg.LiteMode())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(sctx)
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}

func loadRegistry(path string) (*jurisdiction.Registry, error) {
	registry := jurisdiction.NewRegistry()
	if path == "" {
		return registry, nil
	}
	extra, err := config.LoadJurisdictions(path)
	if err != nil {
		return nil, err
	}
	for _, j := range extra {
		if err := registry.Register(j); err != nil {
			return nil, fmt.Errorf("jurisdictions %q: %w", path, err)
		}
	}
	return registry, nil
}

// loadStyles accepts a single profile file or a directory of style_*.yaml
// files. Empty yields the default catalog.
func loadStyles(path string) (*style.Catalog, error) {
	if path == "" {
		return style.NewCatalog(nil)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("style profile: %w", err)
	}
	if info.IsDir() {
		profiles, err := config.LoadAllStyleProfiles(path)
		if err != nil {
			return nil, err
		}
		return style.NewCatalog(profiles)
	}
	p, err := config.LoadStyleProfile(path)
	if err != nil {
		return nil, err
	}
	return style.NewCatalog(map[string]*config.StyleProfile{p.Name: p})
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (snapshot.Store, *sql.DB, error) {
	var (
		store *snapshot.SQLStore
		db    *sql.DB
		err   error
	)
	if cfg.LiteMode() {
		path := filepath.Join(cfg.DataDir, "riskmap.db")
		logger.Info("lite mode: using sqlite", "path", path)
		store, db, err = snapshot.OpenSQLite(path)
	} else {
		store, db, err = snapshot.OpenPostgres(ctx, cfg.DatabaseURL)
		if err == nil {
			logger.Info("postgres: connected")
		}
	}
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot store: %w", err)
	}
	if err := store.Init(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("snapshot store init: %w", err)
	}
	return store, db, nil
}

// openCache prefers Redis and falls back to the in-process cache when Redis
// is not configured or not reachable.
func openCache(ctx context.Context, cfg *config.Config, logger *slog.Logger) (cache.Cache, func()) {
	if cfg.RedisAddr != "" {
		rc := cache.NewRedis(cfg.RedisAddr, os.Getenv("REDIS_PASSWORD"), 0, "riskmap")
		pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		err := rc.Ping(pctx)
		if err == nil {
			logger.Info("redis cache: connected", "addr", cfg.RedisAddr)
			return rc, func() { _ = rc.Close() }
		}
		logger.Warn("redis unavailable, using memory cache", "addr", cfg.RedisAddr, "error", err)
		_ = rc.Close()
	}
	mc := cache.NewMemory(time.Minute)
	return mc, func() { _ = mc.Close() }
}

func newFetcher(cfg *config.Config) *sources.Mux {
	return dataFetcher(cfg.S3Region, cfg.S3Endpoint)
}
