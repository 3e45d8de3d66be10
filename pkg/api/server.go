package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/Mindburn-Labs/riskmap/pkg/geoid"
	"github.com/Mindburn-Labs/riskmap/pkg/jurisdiction"
	"github.com/Mindburn-Labs/riskmap/pkg/mapservice"
	"github.com/Mindburn-Labs/riskmap/pkg/resolver"
	"github.com/Mindburn-Labs/riskmap/pkg/snapshot"
	"github.com/Mindburn-Labs/riskmap/pkg/sources"
	"github.com/Mindburn-Labs/riskmap/pkg/style"
)

// Options configures the router.
type Options struct {
	Service *mapservice.Service
	// Auth enables the token and admin routes when set.
	Auth *Authenticator
	// Limiter is applied to every route when set.
	Limiter             *GlobalRateLimiter
	CORSOrigins         []string
	DefaultJurisdiction jurisdiction.Code
	Logger              *slog.Logger
}

type server struct {
	svc    *mapservice.Service
	defJ   jurisdiction.Code
	logger *slog.Logger
}

// NewRouter returns the HTTP handler of the map API.
func NewRouter(opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default().With("component", "api")
	}
	if opts.DefaultJurisdiction == "" {
		opts.DefaultJurisdiction = jurisdiction.US
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	s := &server{svc: opts.Service, defJ: opts.DefaultJurisdiction, logger: opts.Logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(opts.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Dataset-Hash", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	if opts.Limiter != nil {
		r.Use(opts.Limiter.Middleware)
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/jurisdictions", s.jurisdictions)
		r.Get("/subcategories", s.subcategories)
		r.Get("/profiles", s.profiles)
		r.Get("/resolve", s.resolve)
		r.Get("/style", s.style)
		r.Post("/normalize", s.normalize)
		r.Get("/map", s.renderMap)
		r.Get("/legend", s.legend)

		if opts.Auth != nil {
			r.Post("/auth/token", opts.Auth.TokenHandler)
			r.Group(func(ar chi.Router) {
				ar.Use(opts.Auth.Middleware)
				ar.Post("/admin/reload", s.reload)
				ar.Get("/admin/snapshots", s.snapshots)
			})
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteErrorR(w, r, http.StatusNotFound, "Not Found", "no such route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteErrorR(w, r, http.StatusMethodNotAllowed, "Method Not Allowed", r.Method+" is not supported here")
	})
	return r
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.InfoContext(r.Context(), "request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

func (s *server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) readyz(w http.ResponseWriter, _ *http.Request) {
	st := s.svc.State()
	if st == nil {
		WriteUnavailable(w, mapservice.ErrNotReady.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ready",
		"hash":     st.Dataset.Hash(),
		"version":  st.Dataset.Meta().Version,
		"records":  st.Dataset.Len(),
		"loadedAt": st.LoadedAt,
		"snapshot": st.SnapshotID,
	})
}

func (s *server) jurisdictions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"default":       s.defJ,
		"jurisdictions": s.svc.Registry().All(),
	})
}

func (s *server) subcategories(w http.ResponseWriter, r *http.Request) {
	j, ok := s.jurisdictionParam(w, r)
	if !ok {
		return
	}
	st := s.state(w)
	if st == nil {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"jurisdiction":  j,
		"subcategories": append([]string{resolver.All}, st.Dataset.Subcategories(j)...),
	})
}

func (s *server) profiles(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"default":  style.DefaultProfile,
		"profiles": s.svc.Styles().Names(),
	})
}

func (s *server) resolve(w http.ResponseWriter, r *http.Request) {
	view, ok := s.resolveView(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *server) style(w http.ResponseWriter, r *http.Request) {
	m, ok := s.mapper(w, r)
	if !ok {
		return
	}
	view, ok := s.resolveView(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"view": view, "style": m.StyleFor(view)})
}

type normalizeRequest struct {
	Properties map[string]any `json:"properties"`
}

func (s *server) normalize(w http.ResponseWriter, r *http.Request) {
	var req normalizeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		WriteBadRequest(w, "body must be a JSON object with a properties object")
		return
	}
	n := geoid.New()
	if st := s.svc.State(); st != nil {
		n = st.Normalizer
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"code": n.Normalize(req.Properties),
		"name": n.DisplayName(req.Properties),
	})
}

func (s *server) renderMap(w http.ResponseWriter, r *http.Request) {
	sel, ok := s.selection(w, r)
	if !ok {
		return
	}
	data, err := s.svc.Render(r.Context(), sel, r.URL.Query().Get("profile"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if st := s.svc.State(); st != nil {
		w.Header().Set("X-Dataset-Hash", st.Dataset.Hash())
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *server) legend(w http.ResponseWriter, r *http.Request) {
	m, ok := s.mapper(w, r)
	if !ok {
		return
	}
	profile := r.URL.Query().Get("profile")
	if profile == "" {
		profile = style.DefaultProfile
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"profile": strings.ToLower(profile),
		"policy":  m.Policy,
		"entries": m.Legend(),
	})
}

func (s *server) reload(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Load(r.Context())
	if err != nil {
		s.logger.WarnContext(r.Context(), "reload failed", "error", err, "subject", Subject(r.Context()))
		var le *sources.LoadError
		switch {
		case errors.Is(err, snapshot.ErrDowngrade):
			WriteConflict(w, err.Error())
		case errors.As(err, &le):
			WriteErrorR(w, r, http.StatusBadGateway, "Bad Gateway", le.Error())
		default:
			WriteInternal(w, err)
		}
		return
	}
	s.logger.InfoContext(r.Context(), "reload", "subject", Subject(r.Context()), "hash", st.Dataset.Hash())
	writeJSON(w, http.StatusOK, map[string]any{
		"hash":      st.Dataset.Hash(),
		"version":   st.Dataset.Meta().Version,
		"records":   st.Dataset.Len(),
		"snapshot":  st.SnapshotID,
		"warnings":  st.Dataset.Warnings(),
		"unmatched": st.Unmatched,
	})
}

func (s *server) snapshots(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			WriteBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}
	list, err := s.svc.Snapshots().List(r.Context(), limit)
	if err != nil {
		WriteInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"snapshots": list})
}

// jurisdictionParam reads ?jurisdiction=, defaulting to the configured one.
func (s *server) jurisdictionParam(w http.ResponseWriter, r *http.Request) (jurisdiction.Code, bool) {
	raw := r.URL.Query().Get("jurisdiction")
	if raw == "" {
		return s.defJ, true
	}
	j, err := s.svc.Registry().Parse(raw)
	if err != nil {
		WriteBadRequest(w, err.Error())
		return "", false
	}
	return j, true
}

func (s *server) selection(w http.ResponseWriter, r *http.Request) (resolver.Selection, bool) {
	j, ok := s.jurisdictionParam(w, r)
	if !ok {
		return resolver.Selection{}, false
	}
	return resolver.Selection{Jurisdiction: j, Subcategory: r.URL.Query().Get("subcategory")}.Normalize(), true
}

func (s *server) resolveView(w http.ResponseWriter, r *http.Request) (resolver.View, bool) {
	code := strings.TrimSpace(r.URL.Query().Get("code"))
	if code == "" {
		WriteBadRequest(w, "code is required")
		return resolver.View{}, false
	}
	sel, ok := s.selection(w, r)
	if !ok {
		return resolver.View{}, false
	}
	view, err := s.svc.Resolve(code, sel)
	if err != nil {
		s.writeServiceError(w, r, err)
		return resolver.View{}, false
	}
	return view, true
}

func (s *server) mapper(w http.ResponseWriter, r *http.Request) (*style.Mapper, bool) {
	m, err := s.svc.Mapper(r.URL.Query().Get("profile"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return nil, false
	}
	return m, true
}

func (s *server) state(w http.ResponseWriter) *mapservice.State {
	st := s.svc.State()
	if st == nil {
		WriteUnavailable(w, mapservice.ErrNotReady.Error())
	}
	return st
}

func (s *server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, mapservice.ErrNotReady):
		WriteUnavailable(w, err.Error())
	case errors.Is(err, mapservice.ErrUnknownProfile):
		WriteNotFound(w, err.Error())
	default:
		s.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		WriteInternal(w, err)
	}
}
