package assignment

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

const defaultColor = "#3b82f6"

// Assignment marks a region of a playbook as work for one or more users.
// Region is opaque to the server: a node id or a selection label.
type Assignment struct {
	ID          uuid.UUID   `json:"id"`
	PlaybookID  uuid.UUID   `json:"playbook_id"`
	Region      string      `json:"region"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	DueDate     *time.Time  `json:"due_date,omitempty"`
	Color       string      `json:"color"`
	Status      Status      `json:"status"`
	CreatedBy   uuid.UUID   `json:"created_by"`
	Assignees   []uuid.UUID `json:"assignees"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// watchers returns everyone who hears about changes, minus the actor.
func (a *Assignment) watchers(actor uuid.UUID) []uuid.UUID {
	seen := map[uuid.UUID]struct{}{actor: {}}
	var out []uuid.UUID
	for _, id := range append([]uuid.UUID{a.CreatedBy}, a.Assignees...) {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

type Comment struct {
	ID           uuid.UUID `json:"id"`
	AssignmentID uuid.UUID `json:"assignment_id"`
	UserID       uuid.UUID `json:"user_id"`
	Body         string    `json:"body"`
	CreatedAt    time.Time `json:"created_at"`
}

type NotificationKind string

const (
	KindAssigned      NotificationKind = "assigned"
	KindStatusChanged NotificationKind = "status_changed"
	KindCommented     NotificationKind = "commented"
)

type Notification struct {
	ID           uuid.UUID        `json:"id"`
	UserID       uuid.UUID        `json:"user_id"`
	AssignmentID uuid.UUID        `json:"assignment_id"`
	Kind         NotificationKind `json:"kind"`
	Body         string           `json:"body"`
	Read         bool             `json:"read"`
	CreatedAt    time.Time        `json:"created_at"`
}

type CreateInput struct {
	Region      string      `json:"region" validate:"max=500"`
	Title       string      `json:"title" validate:"required,max=300"`
	Description string      `json:"description" validate:"max=5000"`
	DueDate     *time.Time  `json:"due_date"`
	Color       string      `json:"color" validate:"omitempty,len=7,hexcolor"`
	Assignees   []uuid.UUID `json:"assignees" validate:"required,min=1"`
}

type StatusInput struct {
	Status string `json:"status" validate:"required,oneof=pending in_progress completed cancelled"`
}

type CommentInput struct {
	Body string `json:"body" validate:"required,max=5000"`
}

type MarkReadInput struct {
	IDs []uuid.UUID `json:"ids"`
}
