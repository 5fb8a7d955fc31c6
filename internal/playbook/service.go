package playbook

import (
	"context"
	"encoding/json"
	"strings"

	"go-playbooks/internal/apperr"
	"go-playbooks/internal/shortid"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Store is the persistence the playbook service needs.
type Store interface {
	Create(ctx context.Context, p *Playbook, owner Collaborator) error
	Get(ctx context.Context, id uuid.UUID) (*Playbook, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*Playbook, error)
	Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*Playbook, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Permission(ctx context.Context, playbookID, userID uuid.UUID) (Permission, error)
}

// ChangeFunc is told about writes that may alter what other readers see,
// such as the marketplace listing.
type ChangeFunc func(ctx context.Context, id uuid.UUID)

type Service struct {
	store    Store
	log      zerolog.Logger
	onChange []ChangeFunc
}

func NewService(store Store, log zerolog.Logger) *Service {
	return &Service{store: store, log: log}
}

// OnChange registers fn to run after an update to a listed playbook and
// after every delete. Register before serving requests.
func (s *Service) OnChange(fn ChangeFunc) {
	s.onChange = append(s.onChange, fn)
}

func (s *Service) changed(ctx context.Context, id uuid.UUID) {
	for _, fn := range s.onChange {
		fn(ctx, id)
	}
}

// Create saves a new playbook and registers the owner as an accepted
// collaborator with permission owner.
func (s *Service) Create(ctx context.Context, ownerID uuid.UUID, in CreateInput) (*Playbook, error) {
	if ownerID == uuid.Nil {
		return nil, apperr.Unauthenticated("authentication required")
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apperr.Validation("title is required")
	}
	if in.Price < 0 {
		return nil, apperr.Validation("price must not be negative")
	}
	content := in.Content
	if len(content) == 0 {
		content = emptyContent()
	} else if !json.Valid(content) {
		return nil, apperr.Validation("content must be valid JSON")
	}

	p := &Playbook{
		ID:            uuid.New(),
		Title:         title,
		Content:       content,
		Description:   in.Description,
		Tags:          normalizeTags(in.Tags),
		Category:      in.Category,
		IsPublic:      in.IsPublic,
		IsMarketplace: in.IsMarketplace,
		Price:         in.Price,
		OwnerID:       ownerID,
	}
	owner := Collaborator{
		PlaybookID: p.ID,
		UserID:     ownerID,
		Permission: PermissionOwner,
		Status:     StatusAccepted,
	}
	if err := s.store.Create(ctx, p, owner); err != nil {
		s.log.Error().Err(err).Str("owner_id", ownerID.String()).Msg("create playbook failed")
		return nil, err
	}
	p.ShortID = shortid.ToShortID(p.ID)
	s.log.Info().Str("playbook_id", p.ID.String()).Msg("playbook created")
	return p, nil
}

// Get returns a playbook the user may read: owned, shared with them, public
// or listed in the marketplace.
func (s *Service) Get(ctx context.Context, userID, id uuid.UUID) (*Playbook, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.OwnerID != userID && !p.IsPublic && !p.IsMarketplace {
		perm, err := s.store.Permission(ctx, id, userID)
		if err != nil {
			return nil, err
		}
		if perm == "" {
			return nil, apperr.Forbidden("you do not have access to this playbook")
		}
	}
	p.ShortID = shortid.ToShortID(p.ID)
	return p, nil
}

func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]*Playbook, error) {
	list, err := s.store.ListForUser(ctx, userID)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", userID.String()).Msg("list playbooks failed")
		return nil, err
	}
	for _, p := range list {
		p.ShortID = shortid.ToShortID(p.ID)
	}
	return list, nil
}

// Update applies a partial update. Owners and edit collaborators may change
// content; only the owner may change marketplace listing fields.
func (s *Service) Update(ctx context.Context, userID, id uuid.UUID, in UpdateInput) (*Playbook, error) {
	if in.Empty() {
		return nil, apperr.Validation("nothing to update")
	}
	if in.Title != nil && strings.TrimSpace(*in.Title) == "" {
		return nil, apperr.Validation("title is required")
	}
	if in.Content != nil && !json.Valid(*in.Content) {
		return nil, apperr.Validation("content must be valid JSON")
	}
	if in.Price != nil && *in.Price < 0 {
		return nil, apperr.Validation("price must not be negative")
	}
	if in.Tags != nil {
		tags := normalizeTags(*in.Tags)
		in.Tags = &tags
	}

	perm, err := s.permission(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !perm.CanEdit() {
		return nil, apperr.Forbidden("you do not have permission to edit this playbook")
	}
	if perm != PermissionOwner && (in.IsMarketplace != nil || in.Price != nil || in.IsPublic != nil) {
		return nil, apperr.Forbidden("only the owner can change visibility or pricing")
	}

	p, err := s.store.Update(ctx, id, in)
	if err != nil {
		s.log.Error().Err(err).Str("playbook_id", id.String()).Msg("update playbook failed")
		return nil, err
	}
	p.ShortID = shortid.ToShortID(p.ID)
	if p.IsMarketplace || in.IsMarketplace != nil {
		s.changed(ctx, p.ID)
	}
	return p, nil
}

func (s *Service) Delete(ctx context.Context, userID, id uuid.UUID) error {
	if err := s.CheckOwner(ctx, userID, id); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		s.log.Error().Err(err).Str("playbook_id", id.String()).Msg("delete playbook failed")
		return err
	}
	s.log.Info().Str("playbook_id", id.String()).Msg("playbook deleted")
	s.changed(ctx, id)
	return nil
}

// Duplicate copies a readable playbook into a new private playbook owned by
// userID.
func (s *Service) Duplicate(ctx context.Context, userID, id uuid.UUID) (*Playbook, error) {
	src, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return s.Create(ctx, userID, CreateInput{
		Title:       src.Title + " (Copy)",
		Content:     src.Content,
		Description: src.Description,
		Tags:        src.Tags,
		Category:    src.Category,
	})
}

// CheckAccess fails unless the user may read the playbook.
func (s *Service) CheckAccess(ctx context.Context, userID, playbookID uuid.UUID) error {
	_, err := s.Get(ctx, userID, playbookID)
	return err
}

func (s *Service) CheckEditAccess(ctx context.Context, userID, playbookID uuid.UUID) error {
	perm, err := s.permission(ctx, userID, playbookID)
	if err != nil {
		return err
	}
	if !perm.CanEdit() {
		return apperr.Forbidden("you do not have permission to edit this playbook")
	}
	return nil
}

func (s *Service) CheckOwner(ctx context.Context, userID, playbookID uuid.UUID) error {
	perm, err := s.permission(ctx, userID, playbookID)
	if err != nil {
		return err
	}
	if perm != PermissionOwner {
		return apperr.Forbidden("only the owner can do this")
	}
	return nil
}

// Lookup fetches a playbook without an access check, for internal callers.
func (s *Service) Lookup(ctx context.Context, id uuid.UUID) (*Playbook, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) permission(ctx context.Context, userID, id uuid.UUID) (Permission, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if p.OwnerID == userID {
		return PermissionOwner, nil
	}
	return s.store.Permission(ctx, id, userID)
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
