package pages

import (
	"context"
	"database/sql"
	"encoding/json"

	"go-playbooks/internal/gateway"

	"github.com/google/uuid"
)

var columns = []string{"id", "playbook_id", "title", "content", "created_by", "created_at", "updated_at"}

type Repository struct {
	gw *gateway.Gateway
}

func NewRepository(gw *gateway.Gateway) *Repository {
	return &Repository{gw: gw}
}

func (r *Repository) List(ctx context.Context, playbookID uuid.UUID) ([]*Page, error) {
	rows, err := r.gw.From("internal_pages", columns...).
		Eq("playbook_id", playbookID).
		Order("created_at", true).
		Rows(ctx)
	if err != nil {
		return nil, gateway.Wrap(err, "page")
	}
	defer rows.Close()

	out := []*Page{}
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, gateway.Wrap(err, "page")
		}
		out = append(out, p)
	}
	return out, gateway.Wrap(rows.Err(), "page")
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*Page, error) {
	p, err := scanPage(r.gw.From("internal_pages", columns...).Eq("id", id).Row(ctx))
	if err != nil {
		return nil, gateway.Wrap(err, "page")
	}
	perms, err := r.permissions(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Permissions = perms
	return p, nil
}

func (r *Repository) Insert(ctx context.Context, p *Page) error {
	err := r.gw.InsertReturning(ctx, "internal_pages", map[string]any{
		"playbook_id": p.PlaybookID,
		"title":       p.Title,
		"content":     []byte(p.Content),
		"created_by":  p.CreatedBy,
	}, "id", "created_at", "updated_at").Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	return gateway.Wrap(err, "page")
}

// InsertPermissions writes all rows in one transaction so a failure leaves
// none of them behind.
func (r *Repository) InsertPermissions(ctx context.Context, pageID uuid.UUID, perms []Permission) error {
	if len(perms) == 0 {
		return nil
	}
	return r.gw.WithTx(ctx, func(tx *gateway.Gateway) error {
		for _, p := range perms {
			err := tx.Insert(ctx, "internal_page_permissions", map[string]any{
				"page_id":    pageID,
				"user_id":    p.UserID,
				"permission": p.Permission,
			})
			if err != nil {
				return gateway.Wrap(err, "page permission")
			}
		}
		return nil
	})
}

func (r *Repository) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*Page, error) {
	set := map[string]any{"updated_at": gateway.Expr("now()")}
	if in.Title != nil {
		set["title"] = *in.Title
	}
	if in.Content != nil {
		set["content"] = []byte(*in.Content)
	}
	n, err := r.gw.Update(ctx, "internal_pages", set, gateway.Eq{"id": id})
	if err != nil {
		return nil, gateway.Wrap(err, "page")
	}
	if n == 0 {
		return nil, gateway.Wrap(sql.ErrNoRows, "page")
	}
	return r.Get(ctx, id)
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	n, err := r.gw.Delete(ctx, "internal_pages", gateway.Eq{"id": id})
	if err != nil {
		return gateway.Wrap(err, "page")
	}
	if n == 0 {
		return gateway.Wrap(sql.ErrNoRows, "page")
	}
	return nil
}

func (r *Repository) permissions(ctx context.Context, pageID uuid.UUID) ([]Permission, error) {
	rows, err := r.gw.From("internal_page_permissions", "user_id", "permission").
		Eq("page_id", pageID).
		Rows(ctx)
	if err != nil {
		return nil, gateway.Wrap(err, "page permission")
	}
	defer rows.Close()
	out := []Permission{}
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.UserID, &p.Permission); err != nil {
			return nil, gateway.Wrap(err, "page permission")
		}
		out = append(out, p)
	}
	return out, gateway.Wrap(rows.Err(), "page permission")
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPage(row scanner) (*Page, error) {
	p := &Page{Permissions: []Permission{}}
	var content []byte
	if err := row.Scan(&p.ID, &p.PlaybookID, &p.Title, &content, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Content = json.RawMessage(content)
	return p, nil
}
