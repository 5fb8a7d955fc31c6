package pages

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Page is an internal page attached to a playbook.
type Page struct {
	ID          uuid.UUID       `json:"id"`
	PlaybookID  uuid.UUID       `json:"playbook_id"`
	Title       string          `json:"title"`
	Content     json.RawMessage `json:"content"`
	CreatedBy   uuid.UUID       `json:"created_by"`
	Permissions []Permission    `json:"permissions"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type Permission struct {
	UserID     uuid.UUID `json:"user_id" validate:"required"`
	Permission string    `json:"permission" validate:"required,oneof=edit view"`
}

type CreateInput struct {
	PlaybookID  string          `json:"playbook_id" validate:"required"`
	Title       string          `json:"title" validate:"required,max=300"`
	Content     json.RawMessage `json:"content"`
	Permissions []Permission    `json:"permissions" validate:"dive"`
}

type UpdateInput struct {
	Title   *string          `json:"title" validate:"omitempty,max=300"`
	Content *json.RawMessage `json:"content"`
}
