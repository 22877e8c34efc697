// Package server hosts the MCP endpoint over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bobmcallan/box-mcp/internal/common"
)

// Options configures the HTTP server.
type Options struct {
	Addr string
	// MaxBodyBytes caps request bodies; zero uses 4MB.
	MaxBodyBytes int64
}

// Server manages the HTTP listener and routes.
type Server struct {
	mcpHandler http.Handler
	router     *http.ServeMux
	server     *http.Server
	logger     *common.Logger
	maxBody    int64
}

// New creates an HTTP server that serves mcpHandler at /mcp.
func New(mcpHandler http.Handler, opts Options, logger *common.Logger) *Server {
	s := &Server{
		mcpHandler: mcpHandler,
		logger:     logger,
		maxBody:    opts.MaxBodyBytes,
	}
	if s.maxBody <= 0 {
		s.maxBody = 4 << 20
	}

	s.router = s.setupRoutes()
	s.server = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.withMiddleware(s.router),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      300 * time.Second, // large downloads and slow Box endpoints
		IdleTimeout:       120 * time.Second,
	}

	return s
}

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info().
		Str("address", s.server.Addr).
		Str("url", fmt.Sprintf("http://%s/mcp", s.server.Addr)).
		Msg("HTTP server starting")

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info().Msg("HTTP server stopped")
	return nil
}

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}
