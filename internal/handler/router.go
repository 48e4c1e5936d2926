package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth"
	"github.com/go-chi/render"
	"github.com/rs/zerolog"

	"github.com/unclebandit/draftdesk/internal/controller"
	"github.com/unclebandit/draftdesk/internal/middleware"
)

// NewRouter wires the public health probe and the authenticated API.
func NewRouter(items *controller.ItemController, ingest *IngestHandler, auth *jwtauth.JWTAuth, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(log))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/health", Health)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(auth))
		items.Routes(r)
		ingest.Routes(r)
	})
	return r
}
