package playbook

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"go-playbooks/internal/gateway"

	"github.com/google/uuid"
)

// Columns is the select list understood by ScanRow. Tags come back as a JSON
// array so they scan without driver-specific array types.
var Columns = []string{
	"id", "title", "content", "description",
	"COALESCE(array_to_json(tags), '[]'::json)", "category",
	"is_public", "is_marketplace", "price", "purchase_count",
	"rating", "rating_count", "owner_id", "created_at", "updated_at",
}

// PrefixedColumns qualifies Columns with a table alias.
func PrefixedColumns(alias string) []string {
	out := make([]string, len(Columns))
	for i, c := range Columns {
		switch {
		case strings.HasPrefix(c, "COALESCE(array_to_json(tags)"):
			out[i] = "COALESCE(array_to_json(" + alias + ".tags), '[]'::json)"
		default:
			out[i] = alias + "." + c
		}
	}
	return out
}

type scanner interface {
	Scan(dest ...any) error
}

func ScanRow(row scanner) (*Playbook, error) {
	p := &Playbook{}
	var content, tags []byte
	err := row.Scan(&p.ID, &p.Title, &content, &p.Description, &tags, &p.Category,
		&p.IsPublic, &p.IsMarketplace, &p.Price, &p.PurchaseCount,
		&p.Rating, &p.RatingCount, &p.OwnerID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Content = json.RawMessage(content)
	if err := json.Unmarshal(tags, &p.Tags); err != nil {
		return nil, err
	}
	return p, nil
}

// ScanRows drains rows into a non-nil slice.
func ScanRows(rows *sql.Rows) ([]*Playbook, error) {
	defer rows.Close()
	out := []*Playbook{}
	for rows.Next() {
		p, err := ScanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type Repository struct {
	gw *gateway.Gateway
}

func NewRepository(gw *gateway.Gateway) *Repository {
	return &Repository{gw: gw}
}

// Create inserts the playbook and its owner collaborator row atomically.
func (r *Repository) Create(ctx context.Context, p *Playbook, owner Collaborator) error {
	return r.gw.WithTx(ctx, func(tx *gateway.Gateway) error {
		err := tx.InsertReturning(ctx, "playbooks", map[string]any{
			"id":             p.ID,
			"title":          p.Title,
			"content":        []byte(p.Content),
			"description":    p.Description,
			"tags":           nonNilTags(p.Tags),
			"category":       p.Category,
			"is_public":      p.IsPublic,
			"is_marketplace": p.IsMarketplace,
			"price":          p.Price,
			"owner_id":       p.OwnerID,
		}, "created_at", "updated_at").Scan(&p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return gateway.Wrap(err, "playbook")
		}

		err = tx.InsertReturning(ctx, "collaborators", map[string]any{
			"playbook_id": owner.PlaybookID,
			"user_id":     owner.UserID,
			"permission":  string(owner.Permission),
			"status":      string(owner.Status),
		}, "id").Scan(&owner.ID)
		return gateway.Wrap(err, "collaborator")
	})
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*Playbook, error) {
	p, err := ScanRow(r.gw.From("playbooks", Columns...).Eq("id", id).Row(ctx))
	if err != nil {
		return nil, gateway.Wrap(err, "playbook")
	}
	return p, nil
}

// ListForUser returns playbooks the user owns or has accepted access to,
// most recently updated first.
func (r *Repository) ListForUser(ctx context.Context, userID uuid.UUID) ([]*Playbook, error) {
	rows, err := r.gw.From("playbooks p", PrefixedColumns("p")...).
		Where(`p.owner_id = ? OR EXISTS (
			SELECT 1 FROM collaborators c
			WHERE c.playbook_id = p.id AND c.user_id = ? AND c.status = 'accepted')`,
			userID.String(), userID.String()).
		Order("p.updated_at", false).
		Rows(ctx)
	if err != nil {
		return nil, gateway.Wrap(err, "playbook")
	}
	list, err := ScanRows(rows)
	return list, gateway.Wrap(err, "playbook")
}

func (r *Repository) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*Playbook, error) {
	set := map[string]any{"updated_at": gateway.Expr("now()")}
	if in.Title != nil {
		set["title"] = *in.Title
	}
	if in.Content != nil {
		set["content"] = []byte(*in.Content)
	}
	if in.Description != nil {
		set["description"] = *in.Description
	}
	if in.Tags != nil {
		set["tags"] = nonNilTags(*in.Tags)
	}
	if in.Category != nil {
		set["category"] = *in.Category
	}
	if in.IsPublic != nil {
		set["is_public"] = *in.IsPublic
	}
	if in.IsMarketplace != nil {
		set["is_marketplace"] = *in.IsMarketplace
	}
	if in.Price != nil {
		set["price"] = *in.Price
	}

	n, err := r.gw.Update(ctx, "playbooks", set, gateway.Eq{"id": id})
	if err != nil {
		return nil, gateway.Wrap(err, "playbook")
	}
	if n == 0 {
		return nil, gateway.Wrap(sql.ErrNoRows, "playbook")
	}
	return r.Get(ctx, id)
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	n, err := r.gw.Delete(ctx, "playbooks", gateway.Eq{"id": id})
	if err != nil {
		return gateway.Wrap(err, "playbook")
	}
	if n == 0 {
		return gateway.Wrap(sql.ErrNoRows, "playbook")
	}
	return nil
}

// Permission returns the accepted permission of userID on the playbook, or
// "" when the user is not a collaborator.
func (r *Repository) Permission(ctx context.Context, playbookID, userID uuid.UUID) (Permission, error) {
	var perm string
	err := r.gw.From("collaborators", "permission").
		Eq("playbook_id", playbookID).
		Eq("user_id", userID).
		Eq("status", string(StatusAccepted)).
		Row(ctx).Scan(&perm)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", gateway.Wrap(err, "collaborator")
	}
	return Permission(perm), nil
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
