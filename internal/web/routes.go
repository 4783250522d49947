package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-identity/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	configHandler := handlers.NewConfigHandler(s.config)
	resolveHandler := handlers.NewResolveHandler(s.service)
	personsHandler := handlers.NewPersonsHandler(s.service)
	facesHandler := handlers.NewFacesHandler(s.service)

	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/config", configHandler.Get)

		// Resolution
		r.Post("/resolve", resolveHandler.Resolve)
		r.Post("/resolve/upload", resolveHandler.Upload)

		// Identities
		r.Get("/persons", personsHandler.List)
		r.Post("/persons", personsHandler.Create)
		r.Delete("/persons/{id}", personsHandler.Delete)

		// Feedback
		r.Get("/faces", facesHandler.List)
		r.Post("/faces/{id}/confirm", facesHandler.Confirm)
		r.Post("/faces/{id}/reject", facesHandler.Reject)
	})
}
