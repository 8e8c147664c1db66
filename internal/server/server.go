// Package server provides the invocca HTTP API.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/MCT-Salman/invocca/internal/audit"
	"github.com/MCT-Salman/invocca/internal/auth"
	"github.com/MCT-Salman/invocca/internal/config"
	"github.com/MCT-Salman/invocca/internal/events"
	"github.com/MCT-Salman/invocca/internal/httputil"
	"github.com/MCT-Salman/invocca/internal/store"
	"github.com/MCT-Salman/invocca/pkg/types"
)

const (
	apiPrefix     = "/api/v1"
	serviceName   = "invocca"
	maxBodyBytes  = 1 << 20
	readinessWait = 2 * time.Second
)

// Server wraps HTTP routes and dependencies.
type Server struct {
	store     store.Store
	cfg       config.Config
	version   string
	commit    string
	buildDate string

	verifier  *auth.Verifier
	publisher events.Publisher
	hub       *Hub
	audit     *audit.Logger
	registry  *prometheus.Registry
	router    chi.Router
}

// Option configures server construction.
type Option func(*Server)

// WithVerifier sets the bearer token verifier.
func WithVerifier(v *auth.Verifier) Option {
	return func(s *Server) {
		s.verifier = v
	}
}

// WithPublisher adds an outbound change publisher (NATS). The change feed
// hub always receives changes as well.
func WithPublisher(p events.Publisher) Option {
	return func(s *Server) {
		s.publisher = p
	}
}

// WithAudit replaces the audit logger, which defaults to the global
// logger.
func WithAudit(l *audit.Logger) Option {
	return func(s *Server) {
		s.audit = l
	}
}

// WithRegistry sets the Prometheus registry. Tests pass a fresh one.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) {
		s.registry = reg
	}
}

// New constructs the API server. Call Hub().Run before serving so the
// change feed delivers.
func New(st store.Store, cfg config.Config, version, commit, buildDate string, opts ...Option) *Server {
	logger := log.With().Str("component", "changes").Logger()
	s := &Server{
		store:     st,
		cfg:       cfg,
		version:   version,
		commit:    commit,
		buildDate: buildDate,
		hub:       NewHub(&logger),
		audit:     audit.NewLogger(log.Logger),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
		s.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	s.router = s.buildRouter()
	return s
}

// Router returns the configured router.
func (s *Server) Router() chi.Router {
	return s.router
}

// Hub returns the change feed hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	metrics := httputil.NewMetrics(s.registry, serviceName)

	if s.cfg.TracesEnabled {
		r.Use(func(next http.Handler) http.Handler {
			return otelhttp.NewHandler(next, serviceName)
		})
	}
	if s.cfg.MetricsEnabled {
		r.Use(metrics.Middleware)
	}
	r.Use(httputil.RequestID)
	r.Use(httputil.RequestLogger(log.Logger))
	r.Use(httputil.Recoverer)
	r.Use(httputil.SecureHeaders)
	r.Use(httputil.BodyLimit(maxBodyBytes))
	r.Use(httputil.ContentType)
	r.Use(httputil.APIVersion(types.APIVersion))
	r.Use(httputil.CacheControl)

	r.Group(func(r chi.Router) {
		r.Method(http.MethodGet, "/health", httputil.HealthHandler())
		r.Method(http.MethodGet, "/readiness", httputil.ReadinessHandler(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), readinessWait)
			defer cancel()
			return s.store.Ping(ctx)
		}))
		r.Method(http.MethodGet, "/version", httputil.VersionHandler(s.version, s.commit, s.buildDate))
		if s.cfg.MetricsEnabled {
			r.Method(http.MethodGet, "/metrics", metrics.Handler())
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.JWTMiddleware(auth.MiddlewareConfig{
			Verifier: s.verifier,
			DevMode:  s.cfg.DevMode,
		}))

		r.Route(apiPrefix, func(r chi.Router) {
			mount(r, s.halls())
			mount(r, s.services())
			mount(r, s.events())
			mount(r, s.invitations())
			mount(r, s.templates())
			mount(r, s.reports())
			mount(r, s.ratings())

			r.With(requireAnyRole(allRoles...)).Get("/dashboard", s.handleDashboard)
			r.With(requireAnyRole(allRoles...)).Get("/changes", s.handleChanges)
		})
	})

	return r
}
