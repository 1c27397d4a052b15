package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/sitekeeper/internal/models"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
// Staged files are served behind the same middleware.
func NewRouter(h *Handler, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	for _, k := range models.Kinds {
		list := h.ListUpdates
		if k == models.KindDocuments {
			list = h.ListDocuments
		}
		r.Route("/"+string(k), func(r chi.Router) {
			r.Get("/", list)
			r.Post("/", h.Create(k))
			r.Put("/{index}", h.Edit(k))
			r.Delete("/{index}", h.Delete(k))
		})
	}

	r.Get("/search", h.Search)
	r.Post("/uploads", h.Upload)
	r.Get("/uploads/{filename}", h.ServeUpload)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
