// Package api exposes the search pipeline over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/dshills/agentmem/internal/config"
	"github.com/dshills/agentmem/internal/embedder"
	"github.com/dshills/agentmem/internal/search"
	"github.com/dshills/agentmem/internal/store"
)

// Server hosts the HTTP API.
type Server struct {
	cfgStore *config.Store
	store    *store.SQLiteStore
	search   *search.Service
	provider embedder.Provider
	registry *prometheus.Registry
	log      zerolog.Logger
	http     *http.Server
}

// New creates a Server listening on addr.
func New(addr string, cfgStore *config.Store, st *store.SQLiteStore, svc *search.Service, provider embedder.Provider, registry *prometheus.Registry, log zerolog.Logger) *Server {
	s := &Server{
		cfgStore: cfgStore,
		store:    st,
		search:   svc,
		provider: provider,
		registry: registry,
		log:      log,
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/search", s.handleSearch)
		r.Post("/search", s.handleSearch)
		r.Post("/blocks", s.handleCreateBlock)
		r.Get("/blocks/{id}", s.handleGetBlock)
		r.Delete("/blocks/{id}", s.handleArchiveBlock)
		r.Post("/blocks/{id}/feedback", s.handleFeedback)
		r.Post("/admin/config/refresh", s.handleConfigRefresh)
	})

	s.http = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// ListenAndServe blocks serving requests until Shutdown.
func (s *Server) ListenAndServe() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server listening")
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// requestLogger emits one structured line per request.
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("elapsed", time.Since(started)).
				Msg("request")
		})
	}
}
