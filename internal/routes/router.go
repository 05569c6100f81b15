package routes

import (
	"log/slog"
	"net/http"

	"gametrack/internal/controllers"
	"gametrack/internal/middleware"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Deps struct {
	Catalog       controllers.CatalogClient
	Sessions      controllers.SessionProvider
	Backups       controllers.BackupService
	TokenVerifier middleware.TokenVerifier
	CorsOrigins   []string
}

func SetupRouter(log *slog.Logger, deps Deps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CorsOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.DeviceHeader},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	auth := middleware.NewAuthMiddleware(deps.TokenVerifier, log)
	catalogController := controllers.NewCatalogController(deps.Catalog, log)
	libraryController := controllers.NewLibraryController(deps.Sessions, log)

	r.Route("/api/catalog", func(r chi.Router) {
		r.Get("/platforms", catalogController.Platforms)
		r.Get("/games", catalogController.Search)
		r.Get("/games/{id}", catalogController.Details)
	})

	r.Route("/api/library", func(r chi.Router) {
		r.Use(middleware.Device)
		r.Use(auth.OptionalAuth)

		r.Get("/", libraryController.List)
		r.Get("/stats", libraryController.Stats)
		r.Get("/genres", libraryController.Genres)
		r.Get("/dashboard", libraryController.Dashboard)
		r.Get("/export", libraryController.Export)
		r.Post("/import", libraryController.Import)
		r.Get("/status", libraryController.Status)
		r.Post("/migrate", libraryController.Migrate)
		r.Post("/refresh", libraryController.Refresh)
		r.Get("/events", libraryController.Events)

		if deps.Backups != nil {
			backupController := controllers.NewBackupController(deps.Backups, deps.Sessions, log)
			r.Route("/backups", func(r chi.Router) {
				r.Get("/", backupController.List)
				r.Post("/", backupController.Create)
				r.Post("/{name}/restore", backupController.Restore)
			})
		}

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", libraryController.Get)
			r.Put("/", libraryController.Save)
			r.Patch("/", libraryController.Update)
			r.Delete("/", libraryController.Delete)
		})
	})

	return r
}
