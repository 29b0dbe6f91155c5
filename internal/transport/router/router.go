package router

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jDay-whyT/converterBot-backend/internal/transport/handler"
)

func NewRouter(h *handler.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer)

	r.Get("/health", handler.Health)
	r.With(h.RequireAPIKey).Post("/convert", h.Convert)

	return r
}

func NewWorkerRouter(h *handler.PushHandler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer)

	r.Get("/health", handler.Health)
	r.Post("/pubsub/push", h.Push)

	return r
}
