package http

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"adaptiveclean/internal/middleware"
)

// Handlers are the handlers mounted under /api.
type Handlers struct {
	Datasets  *DatasetHandler
	Runs      *RunHandler
	Learning  *LearningHandler
	Health    *HealthHandler
	ClientLog *ClientLogHandler
}

// APIRoutes returns the /api router. requestTimeout bounds every route but
// the run stream; zero disables it.
func APIRoutes(h Handlers, requestTimeout time.Duration) chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))

	// Streams last as long as the run.
	r.Get("/datasets/{id}/runs/stream", h.Runs.Stream)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))

		r.Route("/datasets", func(r chi.Router) {
			r.Post("/", h.Datasets.Upload)
			r.Post("/import/sheets", h.Datasets.ImportSheet)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.Datasets.Get)
				r.Get("/profile", h.Datasets.Profile)
				r.Get("/variants", h.Datasets.Variants)
				r.Get("/variants/{name}/csv", h.Datasets.ExportVariant)
				r.Post("/runs", h.Runs.Run)
				r.Post("/runs/batch", h.Runs.RunBatch)
			})
		})

		r.Route("/runs", func(r chi.Router) {
			r.Get("/", h.Runs.List)
			r.Get("/{id}", h.Runs.Get)
			r.Delete("/{id}", h.Runs.Cancel)
		})
		r.Get("/algorithms", h.Runs.Algorithms)

		r.Post("/feedback", h.Learning.Feedback)
		r.Post("/feedback/predictions", h.Learning.PredictionFeedback)
		r.Route("/learning", func(r chi.Router) {
			r.Get("/report", h.Learning.Report)
			r.Post("/reset", h.Learning.Reset)
			r.Post("/retrain", h.Learning.Retrain)
		})

		if h.ClientLog != nil {
			r.Post("/logs", h.ClientLog.Handle)
		}
		if h.Health != nil {
			r.Get("/version", h.Health.Version)
		}
	})
	return r
}
