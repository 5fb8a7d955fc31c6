package assignment

import (
	"context"
	"database/sql"

	"go-playbooks/internal/gateway"

	"github.com/google/uuid"
)

var columns = []string{
	"id", "playbook_id", "region", "title", "description", "due_date",
	"color", "status", "created_by", "created_at", "updated_at",
}

type Repository struct {
	gw *gateway.Gateway
}

func NewRepository(gw *gateway.Gateway) *Repository {
	return &Repository{gw: gw}
}

// Create writes the assignment, its assignees and the notifications in one
// transaction.
func (r *Repository) Create(ctx context.Context, a *Assignment, notes []Notification) error {
	return r.gw.WithTx(ctx, func(tx *gateway.Gateway) error {
		values := map[string]any{
			"playbook_id": a.PlaybookID,
			"region":      a.Region,
			"title":       a.Title,
			"description": a.Description,
			"color":       a.Color,
			"status":      string(a.Status),
			"created_by":  a.CreatedBy,
		}
		if a.DueDate != nil {
			values["due_date"] = *a.DueDate
		}
		err := tx.InsertReturning(ctx, "assignments", values, "id", "created_at", "updated_at").
			Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
		if err != nil {
			return gateway.Wrap(err, "assignment")
		}
		for _, uid := range a.Assignees {
			err := tx.Insert(ctx, "assignment_assignees", map[string]any{
				"assignment_id": a.ID,
				"user_id":       uid,
			})
			if err != nil {
				return gateway.Wrap(err, "assignee")
			}
		}
		for i := range notes {
			notes[i].AssignmentID = a.ID
		}
		return insertNotifications(ctx, tx, notes)
	})
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*Assignment, error) {
	a, err := scanAssignment(r.gw.From("assignments", columns...).Eq("id", id).Row(ctx))
	if err != nil {
		return nil, gateway.Wrap(err, "assignment")
	}
	if err := r.loadAssignees(ctx, []*Assignment{a}); err != nil {
		return nil, err
	}
	return a, nil
}

func (r *Repository) ListByPlaybook(ctx context.Context, playbookID uuid.UUID) ([]*Assignment, error) {
	rows, err := r.gw.From("assignments", columns...).
		Eq("playbook_id", playbookID).
		Order("created_at", true).
		Rows(ctx)
	if err != nil {
		return nil, gateway.Wrap(err, "assignment")
	}
	defer rows.Close()

	out := []*Assignment{}
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, gateway.Wrap(err, "assignment")
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, gateway.Wrap(err, "assignment")
	}
	if err := r.loadAssignees(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, notes []Notification) error {
	return r.gw.WithTx(ctx, func(tx *gateway.Gateway) error {
		n, err := tx.Update(ctx, "assignments",
			map[string]any{"status": string(status), "updated_at": gateway.Expr("now()")},
			gateway.Eq{"id": id})
		if err != nil {
			return gateway.Wrap(err, "assignment")
		}
		if n == 0 {
			return gateway.Wrap(sql.ErrNoRows, "assignment")
		}
		return insertNotifications(ctx, tx, notes)
	})
}

func (r *Repository) AddComment(ctx context.Context, c *Comment, notes []Notification) error {
	return r.gw.WithTx(ctx, func(tx *gateway.Gateway) error {
		err := tx.InsertReturning(ctx, "assignment_comments", map[string]any{
			"assignment_id": c.AssignmentID,
			"user_id":       c.UserID,
			"body":          c.Body,
		}, "id", "created_at").Scan(&c.ID, &c.CreatedAt)
		if err != nil {
			return gateway.Wrap(err, "comment")
		}
		return insertNotifications(ctx, tx, notes)
	})
}

func (r *Repository) ListComments(ctx context.Context, assignmentID uuid.UUID) ([]Comment, error) {
	rows, err := r.gw.From("assignment_comments", "id", "assignment_id", "user_id", "body", "created_at").
		Eq("assignment_id", assignmentID).
		Order("created_at", true).
		Rows(ctx)
	if err != nil {
		return nil, gateway.Wrap(err, "comment")
	}
	defer rows.Close()

	out := []Comment{}
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.AssignmentID, &c.UserID, &c.Body, &c.CreatedAt); err != nil {
			return nil, gateway.Wrap(err, "comment")
		}
		out = append(out, c)
	}
	return out, gateway.Wrap(rows.Err(), "comment")
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	n, err := r.gw.Delete(ctx, "assignments", gateway.Eq{"id": id})
	if err != nil {
		return gateway.Wrap(err, "assignment")
	}
	if n == 0 {
		return gateway.Wrap(sql.ErrNoRows, "assignment")
	}
	return nil
}

func (r *Repository) Notifications(ctx context.Context, userID uuid.UUID, unreadOnly bool) ([]Notification, error) {
	q := r.gw.From("notifications",
		"id", "user_id", "COALESCE(assignment_id::text, '')", "kind", "body", "read", "created_at").
		Eq("user_id", userID)
	if unreadOnly {
		q = q.Eq("read", false)
	}
	rows, err := q.Order("created_at", false).Limit(100).Rows(ctx)
	if err != nil {
		return nil, gateway.Wrap(err, "notification")
	}
	defer rows.Close()

	out := []Notification{}
	for rows.Next() {
		var (
			n            Notification
			assignmentID string
			kind         string
		)
		if err := rows.Scan(&n.ID, &n.UserID, &assignmentID, &kind, &n.Body, &n.Read, &n.CreatedAt); err != nil {
			return nil, gateway.Wrap(err, "notification")
		}
		if assignmentID != "" {
			n.AssignmentID, _ = uuid.Parse(assignmentID)
		}
		n.Kind = NotificationKind(kind)
		out = append(out, n)
	}
	return out, gateway.Wrap(rows.Err(), "notification")
}

// MarkRead flags the user's notifications as read. No ids marks all of them.
func (r *Repository) MarkRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error) {
	where := gateway.Eq{"user_id": userID, "read": false}
	if len(ids) > 0 {
		where["id"] = ids
	}
	n, err := r.gw.Update(ctx, "notifications", map[string]any{"read": true}, where)
	return n, gateway.Wrap(err, "notification")
}

func (r *Repository) loadAssignees(ctx context.Context, list []*Assignment) error {
	if len(list) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*Assignment, len(list))
	ids := make([]uuid.UUID, len(list))
	for i, a := range list {
		a.Assignees = []uuid.UUID{}
		byID[a.ID] = a
		ids[i] = a.ID
	}
	rows, err := r.gw.From("assignment_assignees", "assignment_id", "user_id").In("assignment_id", ids).Rows(ctx)
	if err != nil {
		return gateway.Wrap(err, "assignee")
	}
	defer rows.Close()
	for rows.Next() {
		var aid, uid uuid.UUID
		if err := rows.Scan(&aid, &uid); err != nil {
			return gateway.Wrap(err, "assignee")
		}
		if a, ok := byID[aid]; ok {
			a.Assignees = append(a.Assignees, uid)
		}
	}
	return gateway.Wrap(rows.Err(), "assignee")
}

func insertNotifications(ctx context.Context, tx *gateway.Gateway, notes []Notification) error {
	for _, n := range notes {
		err := tx.Insert(ctx, "notifications", map[string]any{
			"user_id":       n.UserID,
			"assignment_id": n.AssignmentID,
			"kind":          string(n.Kind),
			"body":          n.Body,
		})
		if err != nil {
			return gateway.Wrap(err, "notification")
		}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAssignment(row scanner) (*Assignment, error) {
	a := &Assignment{}
	var status string
	err := row.Scan(&a.ID, &a.PlaybookID, &a.Region, &a.Title, &a.Description, &a.DueDate,
		&a.Color, &status, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Status = Status(status)
	return a, nil
}
