package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimid "github.com/go-chi/chi/v5/middleware"

	"github.com/caseforge/engine/internal/api/handlers"
	mw "github.com/caseforge/engine/internal/api/middleware"
)

type Dependencies struct {
	HMACSecret         []byte
	AuthHandler        *handlers.AuthHandler
	GenerationsHandler *handlers.GenerationsHandler
	ProjectsHandler    *handlers.ProjectsHandler
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.Recovery)
	r.Use(mw.Logging)
	r.Use(mw.CORS)
	r.Use(mw.RateLimit(10, 20))
	r.Use(chimid.Compress(5))

	// Health endpoints
	hh := handlers.NewHealthHandler()
	r.Get("/healthz", hh.Liveness)
	r.Get("/readyz", hh.Readiness)

	r.Route("/api/v1", func(api chi.Router) {
		// Auth routes (public)
		api.Route("/auth", func(ar chi.Router) {
			ar.Post("/register", dep.AuthHandler.Register)
			ar.Post("/login", dep.AuthHandler.Login)
			ar.Post("/logout", dep.AuthHandler.Logout)
		})

		// Protected routes
		api.Group(func(protected chi.Router) {
			protected.Use(mw.Auth(dep.HMACSecret))

			protected.Route("/generations", func(gr chi.Router) {
				gr.Get("/", dep.GenerationsHandler.List)
				gr.Post("/", dep.GenerationsHandler.Create)
				gr.Get("/{id}", dep.GenerationsHandler.Get)
				gr.Put("/{id}/content", dep.GenerationsHandler.Revise)
				gr.Put("/{id}/publish", dep.GenerationsHandler.Publish)
				gr.Delete("/{id}", dep.GenerationsHandler.Delete)
			})

			protected.Get("/projects", dep.ProjectsHandler.List)
		})
	})

	return r
}
