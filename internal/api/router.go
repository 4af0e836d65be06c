package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/jeebs/internal/autonomy"
	"github.com/starford/jeebs/internal/proposal"
)

// NewRouter creates a chi router with all API routes mounted.
// Reads need any authenticated identity; lifecycle actions, think-now and
// notification dismissal need the root identity. Commenting is open to any
// authenticated identity. sseHandler, if non-nil, is mounted at GET /events.
func NewRouter(svc *proposal.Service, thinker *autonomy.Thinker, auth AuthConfig, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc, thinker)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(auth))

	r.Get("/evolution/updates", h.ListUpdates)
	r.Get("/evolution/updates/{id}", h.GetUpdate)
	r.Get("/evolution/stats", h.Stats)
	r.Get("/notifications", h.ListNotifications)
	r.Post("/admin/evolution/comment/{id}", h.Comment)

	r.Group(func(r chi.Router) {
		r.Use(RequireRoot)
		r.Post("/admin/evolution/think", h.Think)
		r.Post("/admin/evolution/apply/{id}", h.Apply)
		r.Post("/admin/evolution/deny/{id}", h.Deny)
		r.Post("/admin/evolution/resolve/{id}", h.Resolve)
		r.Post("/admin/evolution/rollback/{id}", h.Rollback)
		r.Delete("/notifications/{id}", h.DismissNotification)
	})

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
