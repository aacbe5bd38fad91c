package httpserver

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Mountable is implemented by *flapjackapi.App: anything that can build the
// Algolia-compatible route tree this server mounts at its root.
type Mountable interface {
	Routes() http.Handler
}

// Server wraps the Algolia-compatible route tree with the operational
// surface every deployment needs regardless of domain: request-id
// stamping, structured request logging, panic recovery, CORS, Prometheus
// scraping, and liveness/readiness probes.
type Server struct {
	router    http.Handler
	Logger    *slog.Logger
	Metrics   *prometheus.Registry
	startedAt time.Time
}

// NewServer builds the outer HTTP handler: global middleware plus
// unauthenticated health/metrics endpoints, with app's route tree mounted
// for everything else.
func NewServer(app Mountable, logger *slog.Logger, metricsReg *prometheus.Registry, corsAllowedOrigins []string) *Server {
	s := &Server{
		Logger:    logger,
		Metrics:   metricsReg,
		startedAt: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)
	mux.Handle("/metrics", promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))
	mux.Handle("/", app.Routes())

	handler := http.Handler(mux)
	handler = cors.Handler(cors.Options{
		AllowedOrigins:   corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Algolia-Application-Id", "X-Algolia-API-Key"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	})(handler)
	handler = middleware.Recoverer(handler)
	handler = Metrics(handler)
	handler = Logger(logger)(handler)
	handler = RequestID(handler)

	s.router = handler
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	Respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz reports ready unconditionally: the in-memory engine and
// on-disk keystore this process owns have no external dependency to probe.
func (s *Server) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	Respond(w, http.StatusOK, map[string]any{
		"status": "ready",
		"uptime": time.Since(s.startedAt).Truncate(time.Second).String(),
	})
}
