// Package core provides the API chassis for the cronwatch ingestion
// service. It builds a chi router and enforces cross-cutting concerns --
// recovery, request correlation, logging, and authentication -- before
// requests reach the check-in handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"cronwatch/internal/config"
)

// Server encapsulates all dependencies for the ingestion API, allowing for
// easy injection during testing and distinct configuration per environment.
type Server struct {
	Config        *config.Config
	Logger        *slog.Logger
	Validator     *Validator
	Authenticator Authenticator // Resolves credentials to Actors; injected for testability.

	// HealthProbes are checked by GET /health. Registered by main.
	HealthProbes []HealthProbe

	// APIRouteRegistrars populate the /api/0 route group. Populated by the
	// application entry point; the indirection avoids an import cycle
	// between core and the handler packages.
	APIRouteRegistrars []func(chi.Router)

	router *chi.Mux

	// closers are resources released on Shutdown, in registration order.
	closers []func() error
}

// NewServer initializes the chassis. The caller mounts routes afterwards
// via MountRoutes; the separation lets tests customize registration.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the http.Handler for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// RegisterCloser adds a resource to release during Shutdown.
func (s *Server) RegisterCloser(fn func() error) {
	s.closers = append(s.closers, fn)
}

// Shutdown releases registered resources. The first close error is
// returned; later closers still run.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")

	var firstErr error
	for _, closeFn := range s.closers {
		if err := closeFn(); err != nil {
			s.Logger.Error("error closing resource", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	s.Logger.Info("server shutdown complete")
	return firstErr
}
