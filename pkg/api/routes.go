package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(s.requestLogger)
	r.Use(s.corsMiddleware())

	r.Get("/", s.handleIndex)
	if s.mcp != nil {
		r.Handle("/mcp", s.mcp)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/models", s.handleListModels)
		r.Get("/shared/{shareID}", s.handleGetShared)

		r.Route("/runs", func(r chi.Router) {
			r.Use(s.requireOwner)

			r.Get("/", s.handleListRuns)
			r.Post("/", s.handleCreateRun)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetRun)
				r.Patch("/", s.handleUpdateRun)
				r.Delete("/", s.handleDeleteRun)
				r.Post("/run", s.handleRunPrompt)
				r.Get("/evals", s.handleListEvals)
				r.Get("/export", s.handleExport)
				r.Post("/share", s.handleShare)
				r.Delete("/share", s.handleUnshare)
			})
		})
	})

	return r
}

func (s *Server) corsMiddleware() func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedMethods: []string{"GET", "HEAD", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", ownerHeader, "Mcp-Session-Id"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}

	origins := s.cfg.CORSOrigins
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		opts.AllowOriginFunc = func(_ *http.Request, _ string) bool {
			return true
		}
	} else {
		opts.AllowedOrigins = origins
	}

	return cors.Handler(opts)
}
