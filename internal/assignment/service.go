package assignment

import (
	"context"
	"fmt"
	"strings"

	"go-playbooks/internal/apperr"
	"go-playbooks/internal/httpx"
	"go-playbooks/internal/playbook"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Store interface {
	Create(ctx context.Context, a *Assignment, notes []Notification) error
	Get(ctx context.Context, id uuid.UUID) (*Assignment, error)
	ListByPlaybook(ctx context.Context, playbookID uuid.UUID) ([]*Assignment, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status, notes []Notification) error
	AddComment(ctx context.Context, c *Comment, notes []Notification) error
	ListComments(ctx context.Context, assignmentID uuid.UUID) ([]Comment, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Notifications(ctx context.Context, userID uuid.UUID, unreadOnly bool) ([]Notification, error)
	MarkRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error)
}

type Playbooks interface {
	Lookup(ctx context.Context, id uuid.UUID) (*playbook.Playbook, error)
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

// Create assigns a region of the playbook. The actor needs edit access and
// every assignee must be able to read the playbook.
func (s *Service) Create(ctx context.Context, actor, playbookID uuid.UUID, in CreateInput) (*Assignment, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := httpx.Validate(&in); err != nil {
		return nil, err
	}
	if err := s.playbooks.CheckEditAccess(ctx, actor, playbookID); err != nil {
		return nil, err
	}
	assignees := dedupe(in.Assignees)
	if len(assignees) == 0 {
		return nil, apperr.Validation("at least one assignee is required")
	}
	for _, uid := range assignees {
		if err := s.playbooks.CheckAccess(ctx, uid, playbookID); err != nil {
			if apperr.Is(err, apperr.KindForbidden) {
				return nil, apperr.Validation("assignee " + uid.String() + " has no access to this playbook")
			}
			return nil, err
		}
	}

	a := &Assignment{
		PlaybookID:  playbookID,
		Region:      in.Region,
		Title:       in.Title,
		Description: in.Description,
		DueDate:     in.DueDate,
		Color:       strings.ToLower(in.Color),
		Status:      StatusPending,
		CreatedBy:   actor,
		Assignees:   assignees,
	}
	if a.Color == "" {
		a.Color = defaultColor
	}

	var notes []Notification
	for _, uid := range a.watchers(actor) {
		notes = append(notes, Notification{
			UserID: uid,
			Kind:   KindAssigned,
			Body:   fmt.Sprintf("You were assigned %q", a.Title),
		})
	}
	if err := s.store.Create(ctx, a, notes); err != nil {
		s.log.Error().Err(err).Str("playbook_id", playbookID.String()).Msg("create assignment failed")
		return nil, err
	}
	s.log.Info().Str("assignment_id", a.ID.String()).Int("assignees", len(assignees)).Msg("assignment created")
	return a, nil
}

func (s *Service) List(ctx context.Context, actor, playbookID uuid.UUID) ([]*Assignment, error) {
	if err := s.playbooks.CheckAccess(ctx, actor, playbookID); err != nil {
		return nil, err
	}
	return s.store.ListByPlaybook(ctx, playbookID)
}

// UpdateStatus may be done by the creator, an assignee or any editor.
func (s *Service) UpdateStatus(ctx context.Context, actor, id uuid.UUID, status Status) (*Assignment, error) {
	if !status.Valid() {
		return nil, apperr.Validation("status must be one of [pending in_progress completed cancelled]")
	}
	a, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.involves(actor) {
		if err := s.playbooks.CheckEditAccess(ctx, actor, a.PlaybookID); err != nil {
			return nil, err
		}
	}
	if a.Status == status {
		return a, nil
	}

	var notes []Notification
	for _, uid := range a.watchers(actor) {
		notes = append(notes, Notification{
			UserID:       uid,
			AssignmentID: a.ID,
			Kind:         KindStatusChanged,
			Body:         fmt.Sprintf("%q is now %s", a.Title, strings.ReplaceAll(string(status), "_", " ")),
		})
	}
	if err := s.store.UpdateStatus(ctx, id, status, notes); err != nil {
		s.log.Error().Err(err).Str("assignment_id", id.String()).Msg("update assignment status failed")
		return nil, err
	}
	a.Status = status
	return a, nil
}

func (s *Service) AddComment(ctx context.Context, actor, id uuid.UUID, body string) (*Comment, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperr.Validation("body is required")
	}
	a, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.playbooks.CheckAccess(ctx, actor, a.PlaybookID); err != nil {
		return nil, err
	}

	c := &Comment{AssignmentID: id, UserID: actor, Body: body}
	var notes []Notification
	for _, uid := range a.watchers(actor) {
		notes = append(notes, Notification{
			UserID:       uid,
			AssignmentID: a.ID,
			Kind:         KindCommented,
			Body:         fmt.Sprintf("New comment on %q", a.Title),
		})
	}
	if err := s.store.AddComment(ctx, c, notes); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) ListComments(ctx context.Context, actor, id uuid.UUID) ([]Comment, error) {
	a, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.playbooks.CheckAccess(ctx, actor, a.PlaybookID); err != nil {
		return nil, err
	}
	return s.store.ListComments(ctx, id)
}

// Delete is allowed for the assignment's creator and the playbook owner.
func (s *Service) Delete(ctx context.Context, actor, id uuid.UUID) error {
	a, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if a.CreatedBy != actor {
		pb, err := s.playbooks.Lookup(ctx, a.PlaybookID)
		if err != nil {
			return err
		}
		if pb.OwnerID != actor {
			return apperr.Forbidden("only the creator or the playbook owner can delete this assignment")
		}
	}
	return s.store.Delete(ctx, id)
}

func (s *Service) Notifications(ctx context.Context, actor uuid.UUID, unreadOnly bool) ([]Notification, error) {
	if actor == uuid.Nil {
		return nil, apperr.Unauthenticated("authentication required")
	}
	return s.store.Notifications(ctx, actor, unreadOnly)
}

func (s *Service) MarkRead(ctx context.Context, actor uuid.UUID, ids []uuid.UUID) (int64, error) {
	if actor == uuid.Nil {
		return 0, apperr.Unauthenticated("authentication required")
	}
	return s.store.MarkRead(ctx, actor, ids)
}

func (a *Assignment) involves(userID uuid.UUID) bool {
	if a.CreatedBy == userID {
		return true
	}
	for _, id := range a.Assignees {
		if id == userID {
			return true
		}
	}
	return false
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
