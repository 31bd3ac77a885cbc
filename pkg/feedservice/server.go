package feedservice

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// StatusServer exposes liveness and counters over HTTP.
type StatusServer struct {
	stats  *Stats
	logger zerolog.Logger
	router chi.Router
	srv    *http.Server
}

// NewStatusServer creates a status server that will listen on addr.
func NewStatusServer(addr string, stats *Stats, logger zerolog.Logger) *StatusServer {
	s := &StatusServer{
		stats:  stats,
		logger: logger.With().Str("component", "StatusServer").Logger(),
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(10 * time.Second))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	router.Get("/stats", s.statsHandler)

	s.router = router
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the router, for mounting or testing.
func (s *StatusServer) Handler() http.Handler {
	return s.router
}

func (s *StatusServer) statsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.stats.Snapshot()); err != nil {
		s.logger.Error().Err(err).Str("request_id", middleware.GetReqID(r.Context())).Msg("Failed to encode and write stats")
	}
}

// Start listens in the background. Listen errors other than a normal
// shutdown are logged.
func (s *StatusServer) Start() {
	s.logger.Info().Str("address", s.srv.Addr).Msg("Starting status server")
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Status server failed")
		}
	}()
}

// Shutdown stops the server, waiting for in-flight requests until ctx is done.
func (s *StatusServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
