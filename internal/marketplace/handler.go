package marketplace

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go-playbooks/internal/apperr"
	"go-playbooks/internal/httpx"
	myMiddleware "go-playbooks/internal/middleware"
	"go-playbooks/internal/playbook"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"
)

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

// Routes mounts the marketplace endpoints on an /api router.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/marketplace", h.List)
	r.Get("/marketplace/diagnostics", h.Diagnostics)
	r.Get("/marketplace/favorites", h.Favorites)
	r.Get("/marketplace/purchases", h.Purchases)
	r.Post("/marketplace/{id}/favorite", h.ToggleFavorite)
	r.Post("/marketplace/{id}/purchase", h.Purchase)
	r.Post("/marketplace/{id}/rating", h.Rate)
	r.Put("/playbooks/{id}/marketplace", h.Publish)
}

// List serves one page of the annotated listing. Query parameters:
// q, category, min_price, max_price, min_rating, tags (comma separated),
// sort, dir, page, page_size.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ident, err := myMiddleware.MustIdentity(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	q := r.URL.Query()
	filters, err := parseFilters(q)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("page_size"))
	size = min(size, 100)

	var (
		list                 []*playbook.Playbook
		favorites, purchases Set
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() (err error) {
		list, err = h.service.Listing(ctx)
		return err
	})
	g.Go(func() error {
		ids, err := h.service.FavoriteIDs(ctx, ident.UserID)
		favorites = NewSet(ids...)
		return err
	})
	g.Go(func() error {
		ids, err := h.service.PurchaseIDs(ctx, ident.UserID)
		purchases = NewSet(ids...)
		return err
	})
	if err := g.Wait(); err != nil {
		httpx.WriteError(w, err)
		return
	}
	items := Apply(list, favorites, purchases, q.Get("q"), filters)
	httpx.WriteData(w, http.StatusOK, Paginate(items, page, size))
}

func (h *Handler) Favorites(w http.ResponseWriter, r *http.Request) {
	ident, err := myMiddleware.MustIdentity(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	ids, err := h.service.FavoriteIDs(r.Context(), ident.UserID)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, ids)
}

func (h *Handler) Purchases(w http.ResponseWriter, r *http.Request) {
	ident, err := myMiddleware.MustIdentity(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	ids, err := h.service.PurchaseIDs(r.Context(), ident.UserID)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, ids)
}

func (h *Handler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
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
	fav, err := h.service.ToggleFavorite(r.Context(), ident.UserID, id)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, map[string]bool{"is_favorite": fav})
}

func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
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
	inserted, err := h.service.Purchase(r.Context(), ident.UserID, id)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	status := http.StatusOK
	if inserted {
		status = http.StatusCreated
	}
	httpx.WriteData(w, status, map[string]bool{"is_purchased": true})
}

func (h *Handler) Rate(w http.ResponseWriter, r *http.Request) {
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
	var in RatingInput
	if err := httpx.Decode(r, &in); err != nil {
		httpx.WriteError(w, err)
		return
	}
	rating, err := h.service.Rate(r.Context(), ident.UserID, id, in.Score)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, rating)
}

func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
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
	var in PublishInput
	if err := httpx.Decode(r, &in); err != nil {
		httpx.WriteError(w, err)
		return
	}
	p, err := h.service.Publish(r.Context(), ident.UserID, id, in)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, p)
}

func (h *Handler) Diagnostics(w http.ResponseWriter, r *http.Request) {
	if _, err := myMiddleware.MustIdentity(r); err != nil {
		httpx.WriteError(w, err)
		return
	}
	d, err := h.service.Diagnostics(r.Context())
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, d)
}

func parseFilters(q url.Values) (Filters, error) {
	f := DefaultFilters()
	f.Category = q.Get("category")
	var err error
	if f.MinPrice, err = optFloat(q, "min_price"); err != nil {
		return f, err
	}
	if f.MaxPrice, err = optFloat(q, "max_price"); err != nil {
		return f, err
	}
	if v, err := optFloat(q, "min_rating"); err != nil {
		return f, err
	} else if v != nil {
		f.MinRating = *v
	}
	if raw := q.Get("tags"); raw != "" {
		f.Tags = strings.Split(raw, ",")
	}
	if s := SortKey(q.Get("sort")); s != "" {
		if !s.Valid() {
			return f, apperr.Validation("sort must be one of [price rating purchases created_at]")
		}
		f.SortBy = s
	}
	switch d := SortDir(q.Get("dir")); d {
	case "":
	case Asc, Desc:
		f.SortDir = d
	default:
		return f, apperr.Validation("dir must be one of [asc desc]")
	}
	return f, nil
}

func optFloat(q url.Values, name string) (*float64, error) {
	raw := q.Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, apperr.Validation(name + " must be a number")
	}
	return &v, nil
}
