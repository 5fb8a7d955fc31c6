package drafts

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go-playbooks/internal/apperr"
	"go-playbooks/internal/playbook"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Creator saves a draft as a real playbook.
type Creator interface {
	Create(ctx context.Context, ownerID uuid.UUID, in playbook.CreateInput) (*playbook.Playbook, error)
}

type Service struct {
	store   Store
	creator Creator
	log     zerolog.Logger
	now     func() time.Time
}

func NewService(store Store, creator Creator, log zerolog.Logger) *Service {
	return &Service{store: store, creator: creator, log: log, now: time.Now}
}

func (s *Service) List(ctx context.Context, session string) ([]Draft, error) {
	return s.store.List(ctx, session)
}

func (s *Service) Get(ctx context.Context, session, id string) (*Draft, error) {
	if !IsTemporaryID(id) {
		return nil, apperr.Validation("not a temporary playbook id")
	}
	return s.store.Get(ctx, session, id)
}

// Create adds a draft unless the session already holds MaxDrafts.
func (s *Service) Create(ctx context.Context, session string, in Input) (*Draft, error) {
	if len(in.Content) > 0 && !json.Valid(in.Content) {
		return nil, apperr.Validation("content must be valid JSON")
	}
	now := s.now()
	d := Draft{
		ID:          NewID(),
		Title:       strings.TrimSpace(in.Title),
		Content:     in.Content,
		Description: in.Description,
		Tags:        in.Tags,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if d.Title == "" {
		d.Title = "Untitled Playbook"
	}
	if len(d.Content) == 0 {
		d.Content = json.RawMessage(`{}`)
	}
	if d.Tags == nil {
		d.Tags = []string{}
	}
	ok, err := s.store.Insert(ctx, session, d, MaxDrafts)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Validation(fmt.Sprintf("temporary playbook limit reached (max %d); save or delete one first", MaxDrafts))
	}
	return &d, nil
}

func (s *Service) Update(ctx context.Context, session, id string, in Input) (*Draft, error) {
	d, err := s.Get(ctx, session, id)
	if err != nil {
		return nil, err
	}
	if len(in.Content) > 0 {
		if !json.Valid(in.Content) {
			return nil, apperr.Validation("content must be valid JSON")
		}
		d.Content = in.Content
	}
	if t := strings.TrimSpace(in.Title); t != "" {
		d.Title = t
	}
	if in.Description != "" {
		d.Description = in.Description
	}
	if in.Tags != nil {
		d.Tags = in.Tags
	}
	d.UpdatedAt = s.now()
	if err := s.store.Put(ctx, session, *d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) Delete(ctx context.Context, session, id string) error {
	if !IsTemporaryID(id) {
		return apperr.Validation("not a temporary playbook id")
	}
	return s.store.Delete(ctx, session, id)
}

// Promote saves the draft as a playbook owned by ownerID and removes it.
func (s *Service) Promote(ctx context.Context, session, id string, ownerID uuid.UUID) (*playbook.Playbook, error) {
	d, err := s.Get(ctx, session, id)
	if err != nil {
		return nil, err
	}
	p, err := s.creator.Create(ctx, ownerID, playbook.CreateInput{
		Title:       d.Title,
		Content:     d.Content,
		Description: d.Description,
		Tags:        d.Tags,
	})
	if err != nil {
		return nil, err
	}
	if err := s.store.Delete(ctx, session, id); err != nil {
		// The playbook exists; a stale draft is only a nuisance.
		s.log.Warn().Err(err).Str("draft_id", id).Msg("remove promoted draft failed")
	}
	return p, nil
}
