// Package httpapi exposes the engine's HTTP surface: health/readiness,
// Prometheus scraping, and the authenticated live-alert subscription feed
// (spec §4.7, §6). It never serves the domain's CRUD resources — those are
// out of scope (Non-goal: no operator dashboard backend).
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/cloudsentinel/riskguard/internal/authn"
	"github.com/cloudsentinel/riskguard/internal/config"
	"github.com/cloudsentinel/riskguard/internal/tenant"
	"github.com/cloudsentinel/riskguard/pkg/alert"
	"github.com/cloudsentinel/riskguard/pkg/broadcast"
)

// Server holds the HTTP server dependencies.
type Server struct {
	Router    *chi.Mux
	Logger    *slog.Logger
	DB        *pgxpool.Pool
	Redis     *redis.Client
	Alerts    *alert.Store
	Broadcast *broadcast.Broadcaster
	startedAt time.Time
}

// NewServer creates an HTTP server with middleware, health/metrics
// endpoints, and the authenticated alert-subscription feed.
func NewServer(
	cfg *config.Config,
	logger *slog.Logger,
	db *pgxpool.Pool,
	rdb *redis.Client,
	metricsReg *prometheus.Registry,
	verifier authn.Verifier,
	alerts *alert.Store,
	bcast *broadcast.Broadcaster,
) *Server {
	s := &Server{
		Router:    chi.NewRouter(),
		Logger:    logger,
		DB:        db,
		Redis:     rdb,
		Alerts:    alerts,
		Broadcast: bcast,
		startedAt: time.Now(),
	}

	s.Router.Use(RequestID)
	s.Router.Use(Logger(logger))
	s.Router.Use(Metrics)
	s.Router.Use(middleware.Recoverer)
	s.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.Router.Get("/healthz", s.handleHealthz)
	s.Router.Get("/readyz", s.handleReadyz)
	s.Router.Handle(cfg.MetricsPath, promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))

	s.Router.Route("/api/v1", func(r chi.Router) {
		r.Use(tenant.Middleware(verifier, logger))

		r.Get("/alerts/recent", s.handleRecentAlerts)
		r.Get("/alerts/subscribe", s.handleSubscribe)
	})

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	Respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := s.DB.Ping(ctx); err != nil {
		s.Logger.Error("readiness check: database ping failed", "error", err)
		RespondError(w, http.StatusServiceUnavailable, "database not ready")
		return
	}

	if err := s.Redis.Ping(ctx).Err(); err != nil {
		s.Logger.Error("readiness check: redis ping failed", "error", err)
		RespondError(w, http.StatusServiceUnavailable, "redis not ready")
		return
	}

	Respond(w, http.StatusOK, map[string]string{"status": "ready"})
}

const recentAlertsLimit = 50

// handleRecentAlerts returns the authenticated organization's most recent
// alerts, for a client to render before (or instead of) opening the
// subscribe feed.
func (s *Server) handleRecentAlerts(w http.ResponseWriter, r *http.Request) {
	orgID := tenant.FromContext(r.Context())

	alerts, err := s.Alerts.ListRecent(r.Context(), orgID, recentAlertsLimit)
	if err != nil {
		s.Logger.Error("listing recent alerts", "organization_id", orgID, "error", err)
		RespondError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}

	Respond(w, http.StatusOK, alerts)
}
