package collab

import (
	"time"

	"github.com/google/uuid"
)

const invitationTTL = 7 * 24 * time.Hour

type Invitation struct {
	ID         uuid.UUID  `json:"id"`
	PlaybookID uuid.UUID  `json:"playbook_id"`
	Email      string     `json:"email"`
	Permission string     `json:"permission"`
	Token      string     `json:"-"`
	InvitedBy  uuid.UUID  `json:"invited_by"`
	ExpiresAt  time.Time  `json:"expires_at"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Usable reports whether the invitation can still be accepted at now.
func (inv *Invitation) Usable(now time.Time) bool {
	return inv.AcceptedAt == nil && now.Before(inv.ExpiresAt)
}

type InviteInput struct {
	PlaybookID string `json:"playbook_id" validate:"required"`
	Email      string `json:"email" validate:"required,email"`
	Permission string `json:"permission" validate:"required,oneof=edit view"`
}

type AcceptInput struct {
	Token string `json:"token" validate:"required"`
}

type PermissionInput struct {
	Permission string `json:"permission" validate:"required,oneof=edit view"`
}
