// Package api serves the node's operational endpoints: liveness, prometheus
// metrics, chain status and engine counters.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperdex/pkg/app/core/engine"
	"github.com/uhyunpark/hyperdex/pkg/app/dex"
)

// Backend is what the ops endpoints read from; *dex.App satisfies it.
type Backend interface {
	ChainStatus() dex.ChainStatus
	GetStats() engine.Stats
}

type Server struct {
	backend Backend
	router  *mux.Router
	handler http.Handler
	logger  *zap.SugaredLogger

	mu   sync.Mutex
	http *http.Server
}

// NewServer wires routes. An empty corsOrigins allows any origin.
func NewServer(backend Backend, gatherer prometheus.Gatherer, logger *zap.SugaredLogger, corsOrigins []string) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Server{
		backend: backend,
		router:  mux.NewRouter(),
		logger:  logger,
	}
	s.setupRoutes(gatherer)

	c := cors.New(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	})
	s.handler = c.Handler(s.router)
	return s
}

func (s *Server) setupRoutes(gatherer prometheus.Gatherer) {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	if gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/chain/status", s.handleChainStatus).Methods("GET")
	api.HandleFunc("/stats", s.handleStats).Methods("GET")
}

// Handler exposes the routed, CORS-wrapped handler (tests, embedding).
func (s *Server) Handler() http.Handler { return s.handler }

// Start blocks serving on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.mu.Lock()
	s.http = srv
	s.mu.Unlock()

	s.logger.Infow("ops_server_starting", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleChainStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, s.backend.ChainStatus())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, s.backend.GetStats())
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}
