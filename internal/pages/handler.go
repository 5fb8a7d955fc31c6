package pages

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

func (h *Handler) Routes(r chi.Router) {
	r.Get("/playbooks/{id}/pages", h.List)
	r.Post("/pages", h.Create)
	r.Get("/pages/{pageID}", h.Get)
	r.Put("/pages/{pageID}", h.Update)
	r.Delete("/pages/{pageID}", h.Delete)
}

// List takes the raw id so unsaved drafts (temp_ ids) resolve to no pages.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ident, err := myMiddleware.MustIdentity(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	list, err := h.service.List(r.Context(), ident.UserID, chi.URLParam(r, "id"))
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
	var in CreateInput
	if err := httpx.Decode(r, &in); err != nil {
		httpx.WriteError(w, err)
		return
	}
	p, err := h.service.Create(r.Context(), ident.UserID, in)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteData(w, http.StatusCreated, p)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	ident, err := myMiddleware.MustIdentity(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	id, err := httpx.PathID(r, "pageID")
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	p, err := h.service.Get(r.Context(), ident.UserID, id)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, p)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	ident, err := myMiddleware.MustIdentity(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	id, err := httpx.PathID(r, "pageID")
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	var in UpdateInput
	if err := httpx.Decode(r, &in); err != nil {
		httpx.WriteError(w, err)
		return
	}
	p, err := h.service.Update(r.Context(), ident.UserID, id, in)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, p)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	ident, err := myMiddleware.MustIdentity(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	id, err := httpx.PathID(r, "pageID")
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
