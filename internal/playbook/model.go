package playbook

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Playbook struct {
	ID            uuid.UUID       `json:"id"`
	ShortID       string          `json:"short_id,omitempty"`
	Title         string          `json:"title"`
	Content       json.RawMessage `json:"content"`
	Description   string          `json:"description"`
	Tags          []string        `json:"tags"`
	Category      string          `json:"category"`
	IsPublic      bool            `json:"is_public"`
	IsMarketplace bool            `json:"is_marketplace"`
	Price         float64         `json:"price"`
	PurchaseCount int             `json:"purchase_count"`
	Rating        float64         `json:"rating"`
	RatingCount   int             `json:"rating_count"`
	OwnerID       uuid.UUID       `json:"owner_id"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Clone returns a deep copy safe to hand out of a locked aggregate.
func (p *Playbook) Clone() *Playbook {
	if p == nil {
		return nil
	}
	c := *p
	c.Content = append(json.RawMessage(nil), p.Content...)
	c.Tags = append([]string(nil), p.Tags...)
	return &c
}

type Permission string

const (
	PermissionOwner Permission = "owner"
	PermissionEdit  Permission = "edit"
	PermissionView  Permission = "view"
)

// CanEdit reports whether the permission allows content changes.
func (p Permission) CanEdit() bool { return p == PermissionOwner || p == PermissionEdit }

type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
)

// Collaborator ties a user to a playbook.
type Collaborator struct {
	ID         uuid.UUID  `json:"id"`
	PlaybookID uuid.UUID  `json:"playbook_id"`
	UserID     uuid.UUID  `json:"user_id"`
	Username   string     `json:"username,omitempty"`
	Permission Permission `json:"permission"`
	Status     Status     `json:"status"`
	InvitedBy  *uuid.UUID `json:"invited_by,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

type CreateInput struct {
	Title         string          `json:"title" validate:"required,max=300"`
	Content       json.RawMessage `json:"content"`
	Description   string          `json:"description" validate:"max=5000"`
	Tags          []string        `json:"tags" validate:"max=20,dive,max=50"`
	Category      string          `json:"category" validate:"max=100"`
	IsPublic      bool            `json:"is_public"`
	IsMarketplace bool            `json:"is_marketplace"`
	Price         float64         `json:"price" validate:"gte=0"`
}

// UpdateInput is a partial update; nil fields are left unchanged.
type UpdateInput struct {
	Title         *string          `json:"title,omitempty" validate:"omitempty,min=1,max=300"`
	Content       *json.RawMessage `json:"content,omitempty"`
	Description   *string          `json:"description,omitempty" validate:"omitempty,max=5000"`
	Tags          *[]string        `json:"tags,omitempty"`
	Category      *string          `json:"category,omitempty"`
	IsPublic      *bool            `json:"is_public,omitempty"`
	IsMarketplace *bool            `json:"is_marketplace,omitempty"`
	Price         *float64         `json:"price,omitempty" validate:"omitempty,gte=0"`
}

func (in UpdateInput) Empty() bool {
	return in.Title == nil && in.Content == nil && in.Description == nil && in.Tags == nil &&
		in.Category == nil && in.IsPublic == nil && in.IsMarketplace == nil && in.Price == nil
}

// Apply copies the set fields onto p.
func (in UpdateInput) Apply(p *Playbook) {
	if in.Title != nil {
		p.Title = *in.Title
	}
	if in.Content != nil {
		p.Content = append(json.RawMessage(nil), (*in.Content)...)
	}
	if in.Description != nil {
		p.Description = *in.Description
	}
	if in.Tags != nil {
		p.Tags = append([]string(nil), (*in.Tags)...)
	}
	if in.Category != nil {
		p.Category = *in.Category
	}
	if in.IsPublic != nil {
		p.IsPublic = *in.IsPublic
	}
	if in.IsMarketplace != nil {
		p.IsMarketplace = *in.IsMarketplace
	}
	if in.Price != nil {
		p.Price = *in.Price
	}
}

func emptyContent() json.RawMessage { return json.RawMessage(`{}`) }
