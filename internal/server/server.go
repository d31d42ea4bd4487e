// Package server exposes the country table, resolver and per-person visited
// reports over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/countries-visited/internal/metrics"
	"github.com/sells-group/countries-visited/internal/store"
	"github.com/sells-group/countries-visited/internal/tracker"
)

// Config holds HTTP server settings.
type Config struct {
	Port        int
	IngestRPS   float64
	IngestBurst int
}

// Server wires handlers to the tracker and store.
type Server struct {
	tracker  *tracker.Tracker
	store    store.Store
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	ingest   *rate.Limiter
	cfg      Config
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics sets the metrics recorded by handlers.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithGatherer sets the registry served on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// New creates a Server. A non-positive IngestRPS disables ingest rate
// limiting.
func New(t *tracker.Tracker, st store.Store, cfg Config, opts ...Option) *Server {
	s := &Server{
		tracker:  t,
		store:    st,
		gatherer: prometheus.DefaultGatherer,
		cfg:      cfg,
	}
	if cfg.IngestRPS > 0 {
		burst := cfg.IngestBurst
		if burst < 1 {
			burst = 1
		}
		s.ingest = rate.NewLimiter(rate.Limit(cfg.IngestRPS), burst)
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/countries", s.handleCountries)
		r.Get("/countries.geojson", s.handleCountriesGeoJSON)
		r.Get("/resolve", s.handleResolve)
		r.Get("/persons", s.handlePersons)

		r.Route("/persons/{person}", func(r chi.Router) {
			r.Get("/visited", s.handleVisited)
			r.With(s.limitIngest).Post("/locations", s.handleRecordLocation)
			r.Get("/manual", s.handleManualList)
			r.Put("/manual", s.handleManualSet)
			r.Post("/manual/{code}", s.handleManualAdd)
			r.Delete("/manual/{code}", s.handleManualRemove)
		})
	})
	return r
}

// limitIngest rejects requests beyond the ingest rate with 429.
func (s *Server) limitIngest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.ingest != nil && !s.ingest.Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server", zap.String("component", "server"))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx) //nolint:errcheck
	}()

	zap.L().Info("starting server", zap.String("component", "server"), zap.Int("port", s.cfg.Port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server: listen")
	}
	return nil
}
