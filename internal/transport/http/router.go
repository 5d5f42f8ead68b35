package http

import (
	"log/slog"
	"net/http"

	"contest-engine/internal/app"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter mounts the REST API, the websocket gateway and the health check.
func NewRouter(engine *app.Engine, logger *slog.Logger) http.Handler {
	contests := NewContestHandler(engine, logger)
	ws := NewWSHandler(engine, logger)

	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.Recoverer)
	mux.Use(cors.AllowAll().Handler)

	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.Get("/ws", ws.ServeWS)

	mux.Route("/contests", func(r chi.Router) {
		r.Post("/", contests.Create)
		r.Post("/join-by-code", contests.JoinByCode)
		r.Get("/{contestId}", contests.Get)
		r.Post("/{contestId}/join", contests.Join)
		r.Post("/{contestId}/start", contests.Start)
		r.Post("/{contestId}/cancel", contests.Cancel)
		r.Post("/{contestId}/answers", contests.SubmitAnswer)
	})

	return mux
}
