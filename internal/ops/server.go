// Package ops exposes the optional health and metrics listener used while
// a long extraction run is in flight.
package ops

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/archivist-tools/forumharvest/internal/metrics"
)

// Server serves /healthz and /metrics on a dedicated listener.
type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

// NewServer builds the server for the given listen address.
func NewServer(listen string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{logger: logger}
	s.srv = &http.Server{
		Addr:              listen,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	r.Handle("/metrics", metrics.Handler())
	return r
}

// Handler returns the route tree (primarily for testing).
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start begins serving in the background. Listener failures other than a
// clean shutdown are logged, not fatal: the pipeline does not depend on
// the ops surface.
func (s *Server) Start() {
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Warn("ops listener stopped", zap.Error(err))
		}
	}()
	s.logger.Info("ops listener started", zap.String("addr", s.srv.Addr))
}

// Shutdown stops the listener gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown ops listener: %w", err)
	}
	return nil
}
