package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/reelfeed/reelfeed/internal/logger"
)

// Server wraps the gateway's HTTP server with graceful shutdown.
type Server struct {
	srv *http.Server
}

// NewServer creates the server on the given listen address.
func NewServer(addr string, handler http.Handler) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start serves until Shutdown is called. A clean shutdown returns nil.
func (s *Server) Start() error {
	logger.Info("gateway listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests
// up to the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info("gateway shutting down")
	return s.srv.Shutdown(ctx)
}
