package collab

import (
	"context"
	"database/sql"
	"time"

	"go-playbooks/internal/gateway"
	"go-playbooks/internal/playbook"

	"github.com/google/uuid"
)

var invitationColumns = []string{
	"id", "playbook_id", "email", "permission", "token", "invited_by", "expires_at", "accepted_at", "created_at",
}

type Repository struct {
	gw *gateway.Gateway
}

func NewRepository(gw *gateway.Gateway) *Repository {
	return &Repository{gw: gw}
}

func (r *Repository) CreateInvitation(ctx context.Context, inv *Invitation) error {
	err := r.gw.InsertReturning(ctx, "invitations", map[string]any{
		"playbook_id": inv.PlaybookID,
		"email":       inv.Email,
		"permission":  inv.Permission,
		"token":       inv.Token,
		"invited_by":  inv.InvitedBy,
		"expires_at":  inv.ExpiresAt,
	}, "id", "created_at").Scan(&inv.ID, &inv.CreatedAt)
	return gateway.Wrap(err, "invitation")
}

func (r *Repository) InvitationByToken(ctx context.Context, token string) (*Invitation, error) {
	inv := &Invitation{}
	err := r.gw.From("invitations", invitationColumns...).Eq("token", token).Row(ctx).Scan(
		&inv.ID, &inv.PlaybookID, &inv.Email, &inv.Permission, &inv.Token,
		&inv.InvitedBy, &inv.ExpiresAt, &inv.AcceptedAt, &inv.CreatedAt)
	if err != nil {
		return nil, gateway.Wrap(err, "invitation")
	}
	return inv, nil
}

func (r *Repository) MarkAccepted(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.gw.Update(ctx, "invitations", map[string]any{"accepted_at": at}, gateway.Eq{"id": id})
	return gateway.Wrap(err, "invitation")
}

// UpsertCollaborator inserts the row or updates permission and status of the
// existing (playbook, user) row.
func (r *Repository) UpsertCollaborator(ctx context.Context, c playbook.Collaborator) error {
	values := map[string]any{
		"playbook_id": c.PlaybookID,
		"user_id":     c.UserID,
		"permission":  string(c.Permission),
		"status":      string(c.Status),
		"updated_at":  gateway.Expr("now()"),
	}
	if c.InvitedBy != nil {
		values["invited_by"] = *c.InvitedBy
	}
	_, err := r.gw.Upsert(ctx, "collaborators", values,
		[]string{"playbook_id", "user_id"}, "permission", "status", "updated_at")
	return gateway.Wrap(err, "collaborator")
}

func (r *Repository) ListCollaborators(ctx context.Context, playbookID uuid.UUID) ([]playbook.Collaborator, error) {
	rows, err := r.gw.From("collaborators c",
		"c.id", "c.playbook_id", "c.user_id", "u.username", "c.permission", "c.status",
		"c.invited_by", "c.created_at", "c.updated_at").
		Join("users u ON u.id = c.user_id").
		Eq("c.playbook_id", playbookID).
		Order("c.created_at", true).
		Rows(ctx)
	if err != nil {
		return nil, gateway.Wrap(err, "collaborator")
	}
	defer rows.Close()

	out := []playbook.Collaborator{}
	for rows.Next() {
		var (
			c          playbook.Collaborator
			perm, stat string
		)
		if err := rows.Scan(&c.ID, &c.PlaybookID, &c.UserID, &c.Username, &perm, &stat,
			&c.InvitedBy, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, gateway.Wrap(err, "collaborator")
		}
		c.Permission, c.Status = playbook.Permission(perm), playbook.Status(stat)
		out = append(out, c)
	}
	return out, gateway.Wrap(rows.Err(), "collaborator")
}

func (r *Repository) UpdatePermission(ctx context.Context, playbookID, userID uuid.UUID, perm playbook.Permission) error {
	n, err := r.gw.Update(ctx, "collaborators",
		map[string]any{"permission": string(perm), "updated_at": gateway.Expr("now()")},
		gateway.Eq{"playbook_id": playbookID, "user_id": userID})
	if err != nil {
		return gateway.Wrap(err, "collaborator")
	}
	if n == 0 {
		return gateway.Wrap(sql.ErrNoRows, "collaborator")
	}
	return nil
}

func (r *Repository) RemoveCollaborator(ctx context.Context, playbookID, userID uuid.UUID) error {
	n, err := r.gw.Delete(ctx, "collaborators", gateway.Eq{"playbook_id": playbookID, "user_id": userID})
	if err != nil {
		return gateway.Wrap(err, "collaborator")
	}
	if n == 0 {
		return gateway.Wrap(sql.ErrNoRows, "collaborator")
	}
	return nil
}
