package drafts

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

// Routes mounts the draft endpoints under /api/drafts. Drafts are keyed by
// the caller's user id.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
	r.Post("/{id}/promote", h.Promote)
}

func session(r *http.Request) (myMiddleware.Identity, string, error) {
	ident, err := myMiddleware.MustIdentity(r)
	if err != nil {
		return ident, "", err
	}
	return ident, ident.UserID.String(), nil
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	_, sess, err := session(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	list, err := h.service.List(r.Context(), sess)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, list)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	_, sess, err := session(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	var in Input
	if err := httpx.Decode(r, &in); err != nil {
		httpx.WriteError(w, err)
		return
	}
	d, err := h.service.Create(r.Context(), sess, in)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteData(w, http.StatusCreated, d)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	_, sess, err := session(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	d, err := h.service.Get(r.Context(), sess, chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, d)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	_, sess, err := session(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	var in Input
	if err := httpx.Decode(r, &in); err != nil {
		httpx.WriteError(w, err)
		return
	}
	d, err := h.service.Update(r.Context(), sess, chi.URLParam(r, "id"), in)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, d)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	_, sess, err := session(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), sess, chi.URLParam(r, "id")); err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (h *Handler) Promote(w http.ResponseWriter, r *http.Request) {
	ident, sess, err := session(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	p, err := h.service.Promote(r.Context(), sess, chi.URLParam(r, "id"), ident.UserID)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteData(w, http.StatusCreated, p)
}
