package web

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kozaktomas/face-identity/internal/config"
	"github.com/kozaktomas/face-identity/internal/resolver"
	"github.com/kozaktomas/face-identity/internal/web/middleware"
)

// requestTimeout bounds a request; uploads run detection for every image.
const requestTimeout = 5 * time.Minute

// Server is the HTTP API in front of a resolution service.
type Server struct {
	config     *config.Config
	service    *resolver.Service
	router     *chi.Mux
	httpServer *http.Server
}

// NewServer wires the middleware stack and routes for svc.
func NewServer(cfg *config.Config, svc *resolver.Service) *Server {
	r := chi.NewRouter()

	s := &Server{
		config:  cfg,
		service: svc,
		router:  r,
	}

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(requestTimeout))
	r.Use(middleware.CORS(cfg.Web.AllowedOrigins))
	r.Use(middleware.SecurityHeaders())

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      requestTimeout,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	t := s.service.Thresholds()
	log.Printf("Starting web server on %s (match threshold %.4f, min margin %.4f)",
		s.httpServer.Addr, t.MatchThreshold, t.MinMargin)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down web server...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}
