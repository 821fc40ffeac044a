package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/neexbeast/trailwx/internal/metrics"
)

const defaultRateLimit = 60

// RouterConfig holds everything NewRouter needs besides the handlers.
type RouterConfig struct {
	Token string
	// RateLimit is requests per minute per IP. Zero uses 60.
	RateLimit int
	DB        dbPinger
	Redis     redisPinger
	Metrics   *metrics.Collector
	Log       *slog.Logger
}

// NewRouter builds and returns the Chi router with all routes configured.
// Health and metrics are unauthenticated; all forecast routes require bearer auth.
// Rate limiting is applied globally per IP.
func NewRouter(handlers *Handlers, cfg RouterConfig) *chi.Mux {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = defaultRateLimit
	}

	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(Metrics(cfg.Metrics))
	r.Use(httprate.LimitByIP(cfg.RateLimit, time.Minute))

	r.Get("/api/v1/health", HealthHandlerFunc(cfg.DB, cfg.Redis, cfg.Log))
	r.Handle("/metrics", cfg.Metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(cfg.Token))
		r.Get("/api/v1/forecast", handlers.GetForecast)
		r.Get("/api/v1/legend", handlers.GetLegend)
		r.Get("/api/v1/routes/{routeID}/outlook", handlers.GetRouteOutlook)
		r.Get("/api/v1/routes/{routeID}/waypoints/{position}/forecast", handlers.GetWaypointForecast)
	})

	return r
}

// Ensure chi.Mux implements http.Handler.
var _ http.Handler = (*chi.Mux)(nil)
