package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/facerec/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	recognizeHandler := handlers.NewRecognizeHandler(s.deps.Recognizer, s.deps.Extractor, s.deps.Publisher)
	similarHandler := handlers.NewSimilarHandler(s.deps.Extractor, s.deps.Gallery)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", handlers.HealthCheck)

		r.Post("/recognize", recognizeHandler.Recognize)
		r.Post("/recognize/annotated", recognizeHandler.Annotated)
		r.Get("/recognizer", recognizeHandler.Record)
		r.Get("/labels", recognizeHandler.Labels)

		r.Post("/similar", similarHandler.Find)
	})
}
