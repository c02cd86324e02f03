package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bobmcallan/curio/internal/app"
	"github.com/bobmcallan/curio/internal/common"
	"github.com/bobmcallan/curio/internal/interfaces"
	"github.com/bobmcallan/curio/internal/services/jobengine"
)

// Server wraps the HTTP server and the job engine surface it exposes.
type Server struct {
	config  *common.Config
	logger  *common.Logger
	engine  interfaces.JobEngine
	hub     *jobengine.EventHub
	server  *http.Server
	started time.Time
}

// NewServer creates a new HTTP REST API server.
func NewServer(a *app.App) *Server {
	s := &Server{
		config:  a.Config,
		logger:  a.Logger,
		engine:  a.Engine,
		hub:     a.Engine.Hub(),
		started: a.StartupTime,
	}

	host := a.Config.Server.Host
	port := a.Config.Server.Port

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      s.buildHandler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// buildHandler assembles the routed mux wrapped in the middleware stack.
func (s *Server) buildHandler() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	return applyMiddleware(mux, s.logger, s.config)
}

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server (blocking).
func (s *Server) Start() error {
	s.logger.Info().
		Str("addr", s.server.Addr).
		Msg("Starting REST API server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
