package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func (c controller) GetMux() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(c.requestIdMw)
	r.Use(c.requestLoggingMw)
	r.Use(cors.AllowAll().Handler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", c.register)
			r.Post("/login", c.login)
		})

		r.Group(func(r chi.Router) {
			r.Use(c.authMw)

			r.Route("/rooms", func(r chi.Router) {
				r.Get("/", c.listPublicRooms)
				r.Post("/", c.createRoom)
				r.Post("/join", c.joinRoomByCode)
			})

			r.Post("/catalog/link", c.linkAccount)
			r.Get("/search", c.searchTracks)

			r.Get("/ws", c.serveWS)
		})
	})

	return r
}
