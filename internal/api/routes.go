package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes configures all API routes.
func SetupRoutes(h *Handlers, corsOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	if len(corsOrigins) == 0 {
		corsOrigins = []string{"http://localhost:5173", "http://localhost:3000"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.health.HandleHealth)
	r.Get("/health/live", h.health.HandleLiveness)
	r.Get("/health/ready", h.health.HandleReadiness)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/client", func(r chi.Router) {
			r.Get("/list", h.ListClients)
			r.Post("/add", h.AddClient)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetClient)
				r.Put("/", h.UpdateClient)
				r.Delete("/", h.DeleteClient)
				r.Post("/test", h.TestClient)
				r.Post("/token", h.UpdateClientToken)
				r.Post("/refresh", h.RefreshClientToken)
				r.Post("/sync", h.SyncClient)
				r.Post("/sync/{resource}", h.SyncClientResource)
			})
		})

		r.Post("/sync/all", h.SyncAllClients)

		r.Route("/dashboard/{clientId}", func(r chi.Router) {
			r.Get("/", h.GetDashboard)
			r.Get("/contacts", h.GetContacts)
			r.Get("/campaigns", h.GetCampaigns)
			r.Get("/emails", h.GetEmails)
			r.Get("/segments", h.GetSegments)
		})
	})

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		respondError(w, http.StatusNotFound, "not_found", "Route not found")
	})
	return r
}
