package httpserver

import (
	"net/http"

	"codeassist/internal/middleware"

	"log/slog"

	"github.com/go-chi/chi/v5"
)

type RouterDeps struct {
	Logger       *slog.Logger
	Handler      *Handler
	ServiceToken string
}

// NewRouter собирает chi-роутер с общими middleware.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recover(deps.Logger))
	r.Use(middleware.Logging(deps.Logger))

	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("pong"))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Auth(deps.ServiceToken))

		r.Get("/models", deps.Handler.Models)
		r.Get("/status", deps.Handler.Status)
		r.Get("/settings", deps.Handler.GetSettings)
		r.Put("/settings", deps.Handler.UpdateSettings)

		r.Post("/completions", deps.Handler.Complete)
		r.Post("/explanations", deps.Handler.Explain)
		r.Post("/generations", deps.Handler.Generate)
		r.Post("/refactorings", deps.Handler.Refactor)
		r.Post("/bugs", deps.Handler.DetectBugs)
		r.Post("/corrections", deps.Handler.CorrectError)
		r.Post("/documentation", deps.Handler.Document)
		r.Post("/files", deps.Handler.CreateFile)
		r.Post("/tokens", deps.Handler.TokenCount)

		r.Post("/chat", deps.Handler.Chat)
		r.Delete("/chat/{session_id}", deps.Handler.ClearChat)
	})

	return r
}
