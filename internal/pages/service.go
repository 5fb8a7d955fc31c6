// Package pages manages internal pages: private sub-documents attached to a
// saved playbook, each with its own per-user edit or view grants.
package pages

import (
	"context"
	"encoding/json"
	"strings"

	"go-playbooks/internal/apperr"
	"go-playbooks/internal/drafts"
	"go-playbooks/internal/httpx"
	"go-playbooks/internal/shortid"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Store interface {
	List(ctx context.Context, playbookID uuid.UUID) ([]*Page, error)
	Get(ctx context.Context, id uuid.UUID) (*Page, error)
	Insert(ctx context.Context, p *Page) error
	InsertPermissions(ctx context.Context, pageID uuid.UUID, perms []Permission) error
	Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*Page, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type Playbooks interface {
	CheckAccess(ctx context.Context, userID, playbookID uuid.UUID) error
	CheckEditAccess(ctx context.Context, userID, playbookID uuid.UUID) error
}

type Service struct {
	store     Store
	playbooks Playbooks
	log       zerolog.Logger
}

func NewService(store Store, playbooks Playbooks, log zerolog.Logger) *Service {
	return &Service{store: store, playbooks: playbooks, log: log}
}

// List returns the pages of a playbook. Unsaved drafts have none, so a
// temporary id answers with an empty list without touching the store.
func (s *Service) List(ctx context.Context, actor uuid.UUID, playbookID string) ([]*Page, error) {
	if drafts.IsTemporaryID(playbookID) {
		return []*Page{}, nil
	}
	id, err := shortid.EnsureUUID(playbookID)
	if err != nil {
		return nil, err
	}
	if err := s.playbooks.CheckAccess(ctx, actor, id); err != nil {
		return nil, err
	}
	return s.store.List(ctx, id)
}

// Create inserts the page and then its permissions. If the permissions
// cannot be written the page is deleted again.
func (s *Service) Create(ctx context.Context, actor uuid.UUID, in CreateInput) (*Page, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := httpx.Validate(&in); err != nil {
		return nil, err
	}
	if drafts.IsTemporaryID(in.PlaybookID) {
		return nil, apperr.Validation("save the playbook before adding pages")
	}
	playbookID, err := shortid.EnsureUUID(in.PlaybookID)
	if err != nil {
		return nil, err
	}
	content := in.Content
	if len(content) == 0 {
		content = json.RawMessage(`{}`)
	} else if !json.Valid(content) {
		return nil, apperr.Validation("content must be valid JSON")
	}
	if err := s.playbooks.CheckEditAccess(ctx, actor, playbookID); err != nil {
		return nil, err
	}

	p := &Page{
		PlaybookID:  playbookID,
		Title:       in.Title,
		Content:     content,
		CreatedBy:   actor,
		Permissions: dedupe(in.Permissions),
	}
	if err := s.store.Insert(ctx, p); err != nil {
		s.log.Error().Err(err).Str("playbook_id", playbookID.String()).Msg("create page failed")
		return nil, err
	}
	if err := s.store.InsertPermissions(ctx, p.ID, p.Permissions); err != nil {
		s.log.Error().Err(err).Str("page_id", p.ID.String()).Msg("page permissions failed, rolling back page")
		if derr := s.store.Delete(ctx, p.ID); derr != nil {
			s.log.Error().Err(derr).Str("page_id", p.ID.String()).Msg("page rollback failed")
		}
		return nil, err
	}
	return p, nil
}

func (s *Service) Get(ctx context.Context, actor, id uuid.UUID) (*Page, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.canRead(ctx, actor, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Update(ctx context.Context, actor, id uuid.UUID, in UpdateInput) (*Page, error) {
	if in.Title == nil && in.Content == nil {
		return nil, apperr.Validation("nothing to update")
	}
	if in.Title != nil {
		t := strings.TrimSpace(*in.Title)
		if t == "" {
			return nil, apperr.Validation("title is required")
		}
		in.Title = &t
	}
	if in.Content != nil && !json.Valid(*in.Content) {
		return nil, apperr.Validation("content must be valid JSON")
	}
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.canEdit(ctx, actor, p); err != nil {
		return nil, err
	}
	return s.store.Update(ctx, id, in)
}

func (s *Service) Delete(ctx context.Context, actor, id uuid.UUID) error {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if p.CreatedBy != actor {
		if err := s.playbooks.CheckEditAccess(ctx, actor, p.PlaybookID); err != nil {
			return err
		}
	}
	return s.store.Delete(ctx, id)
}

// canRead admits playbook readers and anyone granted on the page itself.
func (s *Service) canRead(ctx context.Context, actor uuid.UUID, p *Page) error {
	if p.CreatedBy == actor || grant(p, actor) != "" {
		return nil
	}
	return s.playbooks.CheckAccess(ctx, actor, p.PlaybookID)
}

func (s *Service) canEdit(ctx context.Context, actor uuid.UUID, p *Page) error {
	if p.CreatedBy == actor || grant(p, actor) == "edit" {
		return nil
	}
	return s.playbooks.CheckEditAccess(ctx, actor, p.PlaybookID)
}

func grant(p *Page, userID uuid.UUID) string {
	for _, perm := range p.Permissions {
		if perm.UserID == userID {
			return perm.Permission
		}
	}
	return ""
}

// dedupe keeps the last grant per user.
func dedupe(perms []Permission) []Permission {
	idx := map[uuid.UUID]int{}
	out := []Permission{}
	for _, p := range perms {
		if i, ok := idx[p.UserID]; ok {
			out[i] = p
			continue
		}
		idx[p.UserID] = len(out)
		out = append(out, p)
	}
	return out
}
