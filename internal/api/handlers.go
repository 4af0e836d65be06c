package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/jeebs/internal/autonomy"
	"github.com/starford/jeebs/internal/models"
	"github.com/starford/jeebs/internal/proposal"
)

const maxBodyBytes = 64 << 10

// Handler holds API route handlers.
type Handler struct {
	svc     *proposal.Service
	thinker *autonomy.Thinker
}

// NewHandler creates a new Handler.
func NewHandler(svc *proposal.Service, thinker *autonomy.Thinker) *Handler {
	return &Handler{svc: svc, thinker: thinker}
}

func actor(r *http.Request) string {
	id, _ := IdentityFrom(r.Context())
	return id.Name
}

// redact drops the backup for callers without root. It holds pre-images of
// workspace files.
func redact(r *http.Request, u *ProposedUpdate) {
	if id, _ := IdentityFrom(r.Context()); !id.Root {
		u.Backup = nil
	}
}

// ListUpdates handles GET /api/evolution/updates.
//
//	@Summary		List proposed updates, newest first
//	@Tags			evolution
//	@Produce		json
//	@Param			status	query		string	false	"Filter by status"	Enums(pending, applied, denied, resolved, rolled_back)
//	@Success		200		{object}	UpdateListResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/evolution/updates [get]
func (h *Handler) ListUpdates(w http.ResponseWriter, r *http.Request) {
	status := models.ProposalStatus(r.URL.Query().Get("status"))
	if status != "" && !knownStatus(status) {
		writeJSON(w, http.StatusBadRequest, errorBody(fmt.Sprintf("unknown status %q", status)))
		return
	}
	items, err := h.svc.List(r.Context(), status)
	if err != nil {
		writeError(w, "list updates", err)
		return
	}
	if items == nil {
		items = []ProposedUpdate{}
	}
	for i := range items {
		redact(r, &items[i])
	}
	writeJSON(w, http.StatusOK, UpdateListResponse{Updates: items, Total: len(items)})
}

func knownStatus(s models.ProposalStatus) bool {
	for _, st := range models.AllStatuses {
		if st == s {
			return true
		}
	}
	return false
}

// GetUpdate handles GET /api/evolution/updates/{id}.
//
//	@Summary		Get a proposed update with previews of its documents
//	@Tags			evolution
//	@Produce		json
//	@Param			id	path		string	true	"Update ID"
//	@Success		200	{object}	UpdateDetail
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/evolution/updates/{id} [get]
func (h *Handler) GetUpdate(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get update", err)
		return
	}
	redact(r, u)
	writeJSON(w, http.StatusOK, UpdateDetail{ProposedUpdate: *u, Previews: previews(u.Changes)})
}

// Stats handles GET /api/evolution/stats.
//
//	@Summary		Queue counts and scheduler state
//	@Tags			evolution
//	@Produce		json
//	@Success		200	{object}	StatsResponse
//	@Security		BearerAuth
//	@Router			/evolution/stats [get]
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.svc.Store().CountByStatus(r.Context())
	if err != nil {
		writeError(w, "stats counts", err)
		return
	}
	st, err := h.thinker.State(r.Context())
	if err != nil {
		writeError(w, "stats state", err)
		return
	}
	resp := StatsResponse{Counts: make(map[models.ProposalStatus]int, len(models.AllStatuses))}
	for _, s := range models.AllStatuses {
		resp.Counts[s] = counts[s]
		resp.Total += counts[s]
	}
	resp.Runtime = runtimeStats(st, h.thinker.Settings())
	writeJSON(w, http.StatusOK, resp)
}

// Think handles POST /api/admin/evolution/think.
//
//	@Summary		Run one think-cycle now, skipping the cooldown
//	@Tags			admin
//	@Produce		json
//	@Success		200	{object}	CycleResult
//	@Failure		403	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/admin/evolution/think [post]
func (h *Handler) Think(w http.ResponseWriter, r *http.Request) {
	res, err := h.thinker.Cycle(r.Context(), true)
	if err != nil {
		writeError(w, "think", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// lifecycleFunc is one of the reviewer actions of proposal.Service.
type lifecycleFunc func(ctx context.Context, id, actor string) (*models.ProposedUpdate, error)

// Apply handles POST /api/admin/evolution/apply/{id}.
//
//	@Summary		Apply a pending update to the workspace
//	@Tags			admin
//	@Produce		json
//	@Param			id	path		string	true	"Update ID"
//	@Success		200	{object}	ProposedUpdate
//	@Failure		400	{object}	errResponse
//	@Failure		404	{object}	errResponse
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/admin/evolution/apply/{id} [post]
func (h *Handler) Apply(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "apply", h.svc.Apply)
}

// Deny handles POST /api/admin/evolution/deny/{id}.
//
//	@Summary		Deny a pending update
//	@Tags			admin
//	@Produce		json
//	@Param			id	path		string	true	"Update ID"
//	@Success		200	{object}	ProposedUpdate
//	@Failure		404	{object}	errResponse
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/admin/evolution/deny/{id} [post]
func (h *Handler) Deny(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "deny", h.svc.Deny)
}

// Resolve handles POST /api/admin/evolution/resolve/{id}.
//
//	@Summary		Mark a pending update as resolved without applying it
//	@Tags			admin
//	@Produce		json
//	@Param			id	path		string	true	"Update ID"
//	@Success		200	{object}	ProposedUpdate
//	@Failure		404	{object}	errResponse
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/admin/evolution/resolve/{id} [post]
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "resolve", h.svc.Resolve)
}

// Rollback handles POST /api/admin/evolution/rollback/{id}.
//
//	@Summary		Restore the workspace files an applied update replaced
//	@Tags			admin
//	@Produce		json
//	@Param			id	path		string	true	"Update ID"
//	@Success		200	{object}	ProposedUpdate
//	@Failure		404	{object}	errResponse
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/admin/evolution/rollback/{id} [post]
func (h *Handler) Rollback(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "rollback", h.svc.Rollback)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, op string, fn lifecycleFunc) {
	u, err := fn(r.Context(), chi.URLParam(r, "id"), actor(r))
	if err != nil {
		writeError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// Comment handles POST /api/admin/evolution/comment/{id}.
//
//	@Summary		Add a reviewer comment to an update
//	@Tags			admin
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Update ID"
//	@Param			body	body		CommentRequest	true	"Comment"
//	@Success		200		{object}	ProposedUpdate
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/admin/evolution/comment/{id} [post]
func (h *Handler) Comment(w http.ResponseWriter, r *http.Request) {
	var req CommentRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	u, err := h.svc.Comment(r.Context(), chi.URLParam(r, "id"), actor(r), req.Content)
	if err != nil {
		writeError(w, "comment", err)
		return
	}
	redact(r, u)
	writeJSON(w, http.StatusOK, u)
}

// ListNotifications handles GET /api/notifications.
//
//	@Summary		List notifications, newest first
//	@Tags			notifications
//	@Produce		json
//	@Success		200	{object}	NotificationListResponse
//	@Security		BearerAuth
//	@Router			/notifications [get]
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	ns, err := h.svc.Notifications().List(r.Context())
	if err != nil {
		writeError(w, "list notifications", err)
		return
	}
	if ns == nil {
		ns = []Notification{}
	}
	writeJSON(w, http.StatusOK, NotificationListResponse{Notifications: ns})
}

// DismissNotification handles DELETE /api/notifications/{id}.
//
//	@Summary		Dismiss a notification
//	@Tags			notifications
//	@Param			id	path	string	true	"Notification ID"
//	@Success		204
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notifications/{id} [delete]
func (h *Handler) DismissNotification(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Notifications().Dismiss(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, "dismiss notification", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
