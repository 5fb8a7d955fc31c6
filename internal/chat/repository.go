package chat

import (
	"context"
	"database/sql"

	"go-playbooks/internal/gateway"

	"github.com/google/uuid"
)

const historyLimit = 200

var messageColumns = []string{
	"m.id", "m.playbook_id", "m.user_id", "u.username", "m.message", "m.created_at", "m.edited_at",
}

type Repository struct {
	gw *gateway.Gateway
}

func NewRepository(gw *gateway.Gateway) *Repository {
	return &Repository{gw: gw}
}

// List returns the most recent live messages of a playbook, oldest first.
func (r *Repository) List(ctx context.Context, playbookID uuid.UUID) ([]*Message, error) {
	rows, err := r.gw.From("chat_messages m", messageColumns...).
		Join("users u ON u.id = m.user_id").
		Eq("m.playbook_id", playbookID).
		Eq("m.is_deleted", false).
		Order("m.created_at", false).
		Limit(historyLimit).
		Rows(ctx)
	if err != nil {
		return nil, gateway.Wrap(err, "message")
	}
	defer rows.Close()

	var newestFirst []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, gateway.Wrap(err, "message")
		}
		newestFirst = append(newestFirst, m)
	}
	if err := rows.Err(); err != nil {
		return nil, gateway.Wrap(err, "message")
	}
	out := make([]*Message, len(newestFirst))
	for i, m := range newestFirst {
		out[len(newestFirst)-1-i] = m
	}
	return out, nil
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*Message, error) {
	m, err := scanMessage(r.gw.From("chat_messages m", messageColumns...).
		Join("users u ON u.id = m.user_id").
		Eq("m.id", id).
		Eq("m.is_deleted", false).
		Row(ctx))
	if err != nil {
		return nil, gateway.Wrap(err, "message")
	}
	return m, nil
}

func (r *Repository) Insert(ctx context.Context, m *Message) error {
	err := r.gw.InsertReturning(ctx, "chat_messages", map[string]any{
		"playbook_id": m.PlaybookID,
		"user_id":     m.UserID,
		"message":     m.Message,
	}, "id", "created_at").Scan(&m.ID, &m.CreatedAt)
	return gateway.Wrap(err, "message")
}

func (r *Repository) Update(ctx context.Context, id uuid.UUID, text string) (*Message, error) {
	n, err := r.gw.Update(ctx, "chat_messages",
		map[string]any{"message": text, "edited_at": gateway.Expr("now()")},
		gateway.Eq{"id": id, "is_deleted": false})
	if err != nil {
		return nil, gateway.Wrap(err, "message")
	}
	if n == 0 {
		return nil, gateway.Wrap(sql.ErrNoRows, "message")
	}
	return r.Get(ctx, id)
}

// SoftDelete flags the message; reads filter it out.
func (r *Repository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	n, err := r.gw.Update(ctx, "chat_messages",
		map[string]any{"is_deleted": true},
		gateway.Eq{"id": id, "is_deleted": false})
	if err != nil {
		return gateway.Wrap(err, "message")
	}
	if n == 0 {
		return gateway.Wrap(sql.ErrNoRows, "message")
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (*Message, error) {
	m := &Message{}
	if err := row.Scan(&m.ID, &m.PlaybookID, &m.UserID, &m.Username, &m.Message, &m.CreatedAt, &m.EditedAt); err != nil {
		return nil, err
	}
	return m, nil
}
