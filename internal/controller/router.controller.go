package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func (c *controller) GetMux() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(c.requestIdMw)
	r.Use(c.requestLoggingMw)
	r.Use(cors.AllowAll().Handler)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Get("/ws", c.serveWS)

	r.Route("/api", func(r chi.Router) {
		r.With(c.adminKeyMw).Get("/rooms", c.getRooms)
		r.Get("/minutes/{channel-id}", c.getMinutes)
		r.Get("/transcript/{channel-id}", c.getTranscript)
		r.Get("/webinar/{slug}", c.getWebinarLink)
	})

	return r
}
