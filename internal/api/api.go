// Package api serves the lead pipeline over HTTP.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/lead-harvest/internal/finder"
	"github.com/sells-group/lead-harvest/internal/pipeline"
	"github.com/sells-group/lead-harvest/internal/realtime"
	"github.com/sells-group/lead-harvest/internal/store"
)

// DefaultUserHeader carries the caller's owner id when Options leaves it unset.
const DefaultUserHeader = "X-User-ID"

// Options configures a Server.
type Options struct {
	UserHeader  string
	CORSOrigins []string
	KeyPrefix   string

	// Criteria and Strictness apply to validation requests that omit them.
	Criteria   string
	Strictness int

	// Proxies is the rotation list for find and generate requests.
	Proxies   []string
	FindLimit int
	// DelayUnit scales the per-user request delay setting. Zero means
	// one second.
	DelayUnit time.Duration

	// Gatherer backs /metrics. Nil means the default registry.
	Gatherer prometheus.Gatherer
}

// Server holds the HTTP handlers.
type Server struct {
	svc    *pipeline.Service
	finder *finder.Finder
	gen    pipeline.Generator
	hub    *realtime.Hub
	opts   Options
}

// NewServer creates a Server. hub may be nil, which disables /ws/leads.
func NewServer(svc *pipeline.Service, f *finder.Finder, gen pipeline.Generator, hub *realtime.Hub, opts Options) *Server {
	if opts.UserHeader == "" {
		opts.UserHeader = DefaultUserHeader
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	if opts.DelayUnit <= 0 {
		opts.DelayUnit = time.Second
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	return &Server{svc: svc, finder: f, gen: gen, hub: hub, opts: opts}
}

// Router builds the chi router with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", s.opts.UserHeader},
		ExposedHeaders: []string{"Content-Disposition", "X-Export-Count"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	if s.hub != nil {
		r.Get("/ws/leads", s.hub.Handler(s.owner))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireOwner)

		r.Route("/leads", func(r chi.Router) {
			r.Get("/", s.listLeads)
			r.Delete("/", s.deleteLeads)
			r.Get("/stats", s.leadStats)
			r.Get("/export", s.exportLeads)
			r.Post("/import", s.importLeads)
			r.Post("/generate", s.generateLeads)
			r.Post("/validate", s.validateLeads)
			r.Patch("/{id}", s.modifyLead)
		})
		r.Post("/find", s.findLeads)

		r.Route("/audit", func(r chi.Router) {
			r.Get("/", s.listAudit)
			r.Delete("/", s.clearAudit)
			r.Get("/stats", s.auditStats)
		})

		r.Get("/settings", s.getSettings)
		r.Put("/settings", s.putSettings)
		r.Post("/settings/test-key", s.testKey)
	})

	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// owner resolves the caller from the user header. WebSocket clients that
// cannot set headers pass user_id as a query parameter.
func (s *Server) owner(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.Header.Get(s.opts.UserHeader))
	if id == "" {
		id = strings.TrimSpace(r.URL.Query().Get("user_id"))
	}
	if id == "" {
		return "", store.ErrNotLoggedIn
	}
	return id, nil
}

func (s *Server) requireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := s.owner(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(store.WithOwner(r.Context(), id)))
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
