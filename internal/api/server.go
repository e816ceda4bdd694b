package api

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Server wraps the HTTP listener exposing the alert and price endpoints.
type Server struct {
	httpServer *http.Server
	logger     zerolog.Logger
}

// Options tune the listener.
type Options struct {
	Listen       string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewServer builds the HTTP server around a handler.
func NewServer(opts Options, handler http.Handler, logger zerolog.Logger) *Server {
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         opts.Listen,
			Handler:      handler,
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			IdleTimeout:  120 * time.Second,
		},
		logger: logger.With().Str("component", "api_server").Logger(),
	}
}

// Start blocks serving requests until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.logger.Error().Err(err).Msg("HTTP server error")
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down HTTP server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error().Err(err).Msg("HTTP server shutdown error")
		return err
	}
	return nil
}
