// Package drafts keeps not-yet-saved ("temporary") playbooks per session.
// A session holds at most MaxDrafts drafts; draft ids carry TempPrefix so
// they can never be confused with persisted playbook ids.
package drafts

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	TempPrefix = "temp_"
	MaxDrafts  = 2
)

type Draft struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Content     json.RawMessage `json:"content"`
	Description string          `json:"description"`
	Tags        []string        `json:"tags"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type Input struct {
	Title       string          `json:"title" validate:"max=300"`
	Content     json.RawMessage `json:"content"`
	Description string          `json:"description" validate:"max=5000"`
	Tags        []string        `json:"tags" validate:"max=20"`
}

func NewID() string { return TempPrefix + uuid.NewString() }

// IsTemporaryID reports whether id names a draft rather than a saved playbook.
func IsTemporaryID(id string) bool { return strings.HasPrefix(id, TempPrefix) }

// Store persists drafts for a session key.
type Store interface {
	List(ctx context.Context, session string) ([]Draft, error)
	Get(ctx context.Context, session, id string) (*Draft, error)
	Put(ctx context.Context, session string, d Draft) error
	// Insert adds d only while the session holds fewer than limit drafts.
	// The count and the write happen atomically; ok is false when full.
	Insert(ctx context.Context, session string, d Draft, limit int) (ok bool, err error)
	Delete(ctx context.Context, session, id string) error
}
