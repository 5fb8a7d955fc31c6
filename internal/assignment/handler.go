package assignment

import (
	"net/http"

	"go-playbooks/internal/httpx"
	myMiddleware "go-playbooks/internal/middleware"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

// Routes mounts assignment and notification endpoints on an /api router.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/playbooks/{id}/assignments", h.List)
	r.Post("/playbooks/{id}/assignments", h.Create)
	r.Patch("/assignments/{assignmentID}/status", h.UpdateStatus)
	r.Delete("/assignments/{assignmentID}", h.Delete)
	r.Get("/assignments/{assignmentID}/comments", h.ListComments)
	r.Post("/assignments/{assignmentID}/comments", h.AddComment)
	r.Get("/notifications", h.Notifications)
	r.Post("/notifications/read", h.MarkRead)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ident, err := myMiddleware.MustIdentity(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	list, err := h.service.List(r.Context(), ident.UserID, id)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, list)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	ident, err := myMiddleware.MustIdentity(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	var in CreateInput
	if err := httpx.Decode(r, &in); err != nil {
		httpx.WriteError(w, err)
		return
	}
	a, err := h.service.Create(r.Context(), ident.UserID, id, in)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteData(w, http.StatusCreated, a)
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	ident, err := myMiddleware.MustIdentity(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	id, err := httpx.PathID(r, "assignmentID")
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	var in StatusInput
	if err := httpx.Decode(r, &in); err != nil {
		httpx.WriteError(w, err)
		return
	}
	a, err := h.service.UpdateStatus(r.Context(), ident.UserID, id, Status(in.Status))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, a)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	ident, err := myMiddleware.MustIdentity(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	id, err := httpx.PathID(r, "assignmentID")
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), ident.UserID, id); err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (h *Handler) ListComments(w http.ResponseWriter, r *http.Request) {
	ident, err := myMiddleware.MustIdentity(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	id, err := httpx.PathID(r, "assignmentID")
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	list, err := h.service.ListComments(r.Context(), ident.UserID, id)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, list)
}

func (h *Handler) AddComment(w http.ResponseWriter, r *http.Request) {
	ident, err := myMiddleware.MustIdentity(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	id, err := httpx.PathID(r, "assignmentID")
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	var in CommentInput
	if err := httpx.Decode(r, &in); err != nil {
		httpx.WriteError(w, err)
		return
	}
	c, err := h.service.AddComment(r.Context(), ident.UserID, id, in.Body)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteData(w, http.StatusCreated, c)
}

// Notifications lists the caller's notifications; ?unread=true filters.
func (h *Handler) Notifications(w http.ResponseWriter, r *http.Request) {
	ident, err := myMiddleware.MustIdentity(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	list, err := h.service.Notifications(r.Context(), ident.UserID, r.URL.Query().Get("unread") == "true")
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, list)
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	ident, err := myMiddleware.MustIdentity(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	var in MarkReadInput
	if err := httpx.Decode(r, &in); err != nil {
		httpx.WriteError(w, err)
		return
	}
	n, err := h.service.MarkRead(r.Context(), ident.UserID, in.IDs)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, map[string]int64{"updated": n})
}
