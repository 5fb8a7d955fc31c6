package collab

import (
	"net/http"

	"go-playbooks/internal/httpx"
	myMiddleware "go-playbooks/internal/middleware"
	"go-playbooks/internal/playbook"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

// Routes mounts invitation and collaborator endpoints on an /api router.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/invitations", h.Invite)
	r.Post("/invitations/accept", h.Accept)
	r.Get("/playbooks/{id}/collaborators", h.List)
	r.Patch("/playbooks/{id}/collaborators/{userID}", h.UpdatePermission)
	r.Delete("/playbooks/{id}/collaborators/{userID}", h.Remove)
}

func (h *Handler) Invite(w http.ResponseWriter, r *http.Request) {
	ident, err := myMiddleware.MustIdentity(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	var in InviteInput
	if err := httpx.Decode(r, &in); err != nil {
		httpx.WriteError(w, err)
		return
	}
	inv, err := h.service.Invite(r.Context(), ident.UserID, in)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteData(w, http.StatusCreated, inv)
}

func (h *Handler) Accept(w http.ResponseWriter, r *http.Request) {
	ident, err := myMiddleware.MustIdentity(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	var in AcceptInput
	if err := httpx.Decode(r, &in); err != nil {
		httpx.WriteError(w, err)
		return
	}
	c, err := h.service.Accept(r.Context(), ident.UserID, in.Token)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, c)
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

func (h *Handler) UpdatePermission(w http.ResponseWriter, r *http.Request) {
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
	target, err := httpx.PathID(r, "userID")
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	var in PermissionInput
	if err := httpx.Decode(r, &in); err != nil {
		httpx.WriteError(w, err)
		return
	}
	if err := h.service.UpdatePermission(r.Context(), ident.UserID, id, target, playbook.Permission(in.Permission)); err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, map[string]string{"permission": in.Permission})
}

func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
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
	target, err := httpx.PathID(r, "userID")
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	if err := h.service.Remove(r.Context(), ident.UserID, id, target); err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, map[string]bool{"removed": true})
}
