package marketplace

import (
	"math"
	"sort"
	"strings"

	"go-playbooks/internal/playbook"

	"github.com/google/uuid"
)

type SortKey string

const (
	SortPrice     SortKey = "price"
	SortRating    SortKey = "rating"
	SortPurchases SortKey = "purchases"
	SortCreated   SortKey = "created_at"
)

func (k SortKey) Valid() bool {
	switch k {
	case SortPrice, SortRating, SortPurchases, SortCreated:
		return true
	}
	return false
}

type SortDir string

const (
	Asc  SortDir = "asc"
	Desc SortDir = "desc"
)

// Filters narrows and orders the listing. Zero values mean "no filter";
// Category "all" is treated like "".
type Filters struct {
	Category  string   `json:"category"`
	MinPrice  *float64 `json:"min_price,omitempty"`
	MaxPrice  *float64 `json:"max_price,omitempty"`
	MinRating float64  `json:"min_rating"`
	Tags      []string `json:"tags"`
	SortBy    SortKey  `json:"sort_by"`
	SortDir   SortDir  `json:"sort_dir"`
}

func DefaultFilters() Filters {
	return Filters{Tags: []string{}, SortBy: SortCreated, SortDir: Desc}
}

// FilterPatch holds the fields to change; nil fields are left alone.
type FilterPatch struct {
	Category  *string
	MinPrice  **float64
	MaxPrice  **float64
	MinRating *float64
	Tags      *[]string
	SortBy    *SortKey
	SortDir   *SortDir
}

// Merge returns f with the patch applied. Unknown sort keys and directions
// are ignored.
func (f Filters) Merge(p FilterPatch) Filters {
	if p.Category != nil {
		f.Category = *p.Category
	}
	if p.MinPrice != nil {
		f.MinPrice = *p.MinPrice
	}
	if p.MaxPrice != nil {
		f.MaxPrice = *p.MaxPrice
	}
	if p.MinRating != nil {
		f.MinRating = *p.MinRating
	}
	if p.Tags != nil {
		f.Tags = append([]string{}, (*p.Tags)...)
	}
	if p.SortBy != nil && p.SortBy.Valid() {
		f.SortBy = *p.SortBy
	}
	if p.SortDir != nil && (*p.SortDir == Asc || *p.SortDir == Desc) {
		f.SortDir = *p.SortDir
	}
	return f
}

// Item is a listing entry annotated for one user.
type Item struct {
	playbook.Playbook
	IsFavorite  bool `json:"is_favorite"`
	IsPurchased bool `json:"is_purchased"`
}

// Set is a membership set of playbook ids.
type Set map[uuid.UUID]struct{}

func NewSet(ids ...uuid.UUID) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s Set) Has(id uuid.UUID) bool {
	_, ok := s[id]
	return ok
}

func (s Set) IDs() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	return out
}

func (s Set) clone() Set {
	c := make(Set, len(s))
	for id := range s {
		c[id] = struct{}{}
	}
	return c
}

// Apply derives the visible listing: search on title and description,
// attribute filters, favorite/purchase annotation, then a stable sort.
// The input slice is not modified.
func Apply(listing []*playbook.Playbook, favorites, purchases Set, query string, f Filters) []Item {
	q := strings.ToLower(strings.TrimSpace(query))
	category := strings.TrimSpace(f.Category)
	if strings.EqualFold(category, "all") {
		category = ""
	}
	wantTags := make(map[string]struct{}, len(f.Tags))
	for _, t := range f.Tags {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			wantTags[t] = struct{}{}
		}
	}

	out := make([]Item, 0, len(listing))
	for _, p := range listing {
		if p == nil {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(p.Title), q) &&
			!strings.Contains(strings.ToLower(p.Description), q) {
			continue
		}
		if category != "" && !strings.EqualFold(p.Category, category) {
			continue
		}
		if f.MinPrice != nil && p.Price < *f.MinPrice {
			continue
		}
		if f.MaxPrice != nil && p.Price > *f.MaxPrice {
			continue
		}
		if p.Rating < f.MinRating {
			continue
		}
		if len(wantTags) > 0 && !overlaps(p.Tags, wantTags) {
			continue
		}
		out = append(out, Item{
			Playbook:    *p.Clone(),
			IsFavorite:  favorites.Has(p.ID),
			IsPurchased: purchases.Has(p.ID),
		})
	}

	less := lessFunc(f.SortBy)
	desc := f.SortDir == Desc
	sort.SliceStable(out, func(i, j int) bool {
		if desc {
			return less(out[j], out[i])
		}
		return less(out[i], out[j])
	})
	return out
}

func overlaps(tags []string, want map[string]struct{}) bool {
	for _, t := range tags {
		if _, ok := want[strings.ToLower(t)]; ok {
			return true
		}
	}
	return false
}

func lessFunc(k SortKey) func(a, b Item) bool {
	switch k {
	case SortPrice:
		return func(a, b Item) bool { return a.Price < b.Price }
	case SortRating:
		return func(a, b Item) bool { return a.Rating < b.Rating }
	case SortPurchases:
		return func(a, b Item) bool { return a.PurchaseCount < b.PurchaseCount }
	default:
		return func(a, b Item) bool { return a.CreatedAt.Before(b.CreatedAt) }
	}
}

// PageResult is one page of the derived listing. Page is 1-based.
type PageResult struct {
	Items    []Item `json:"items"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
	Total    int    `json:"total"`
	Pages    int    `json:"pages"`
}

const DefaultPageSize = 12

// Paginate slices items. Out-of-range pages are clamped.
func Paginate(items []Item, page, size int) PageResult {
	if size <= 0 {
		size = DefaultPageSize
	}
	total := len(items)
	pages := int(math.Ceil(float64(total) / float64(size)))
	if pages == 0 {
		pages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > pages {
		page = pages
	}
	start := (page - 1) * size
	end := min(start+size, total)
	return PageResult{
		Items:    append([]Item{}, items[start:end]...),
		Page:     page,
		PageSize: size,
		Total:    total,
		Pages:    pages,
	}
}
