package collab

import (
	"context"
	"strings"
	"time"

	"go-playbooks/internal/apperr"
	"go-playbooks/internal/mailer"
	"go-playbooks/internal/playbook"
	"go-playbooks/internal/shortid"
	"go-playbooks/internal/user"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Store interface {
	CreateInvitation(ctx context.Context, inv *Invitation) error
	InvitationByToken(ctx context.Context, token string) (*Invitation, error)
	MarkAccepted(ctx context.Context, id uuid.UUID, at time.Time) error
	UpsertCollaborator(ctx context.Context, c playbook.Collaborator) error
	ListCollaborators(ctx context.Context, playbookID uuid.UUID) ([]playbook.Collaborator, error)
	UpdatePermission(ctx context.Context, playbookID, userID uuid.UUID, perm playbook.Permission) error
	RemoveCollaborator(ctx context.Context, playbookID, userID uuid.UUID) error
}

type Playbooks interface {
	Lookup(ctx context.Context, id uuid.UUID) (*playbook.Playbook, error)
	CheckAccess(ctx context.Context, userID, playbookID uuid.UUID) error
	CheckEditAccess(ctx context.Context, userID, playbookID uuid.UUID) error
	CheckOwner(ctx context.Context, userID, playbookID uuid.UUID) error
}

type Users interface {
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
	GetByEmail(ctx context.Context, email string) (*user.User, error)
}

type Service struct {
	store     Store
	playbooks Playbooks
	users     Users
	mail      mailer.Sender
	baseURL   string
	log       zerolog.Logger
	now       func() time.Time
}

func NewService(store Store, playbooks Playbooks, users Users, mail mailer.Sender, baseURL string, log zerolog.Logger) *Service {
	return &Service{
		store:     store,
		playbooks: playbooks,
		users:     users,
		mail:      mail,
		baseURL:   strings.TrimRight(baseURL, "/"),
		log:       log,
		now:       time.Now,
	}
}

// Invite records an invitation and emails it. Registered invitees also get
// a pending collaborator row right away. If the email cannot be delivered
// the invitation is kept and a downstream error is returned.
func (s *Service) Invite(ctx context.Context, inviterID uuid.UUID, in InviteInput) (*Invitation, error) {
	playbookID, err := shortid.EnsureUUID(in.PlaybookID)
	if err != nil {
		return nil, err
	}
	if in.Permission != string(playbook.PermissionEdit) && in.Permission != string(playbook.PermissionView) {
		return nil, apperr.Validation("permission must be one of [edit view]")
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" {
		return nil, apperr.Validation("email is required")
	}
	if err := s.playbooks.CheckEditAccess(ctx, inviterID, playbookID); err != nil {
		return nil, err
	}
	pb, err := s.playbooks.Lookup(ctx, playbookID)
	if err != nil {
		return nil, err
	}
	inviter, err := s.users.GetByID(ctx, inviterID)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(inviter.Email, email) {
		return nil, apperr.Validation("you cannot invite yourself")
	}

	invitee, err := s.users.GetByEmail(ctx, email)
	switch {
	case apperr.Is(err, apperr.KindNotFound):
		invitee = nil
	case err != nil:
		return nil, err
	}
	if invitee != nil {
		if invitee.ID == pb.OwnerID {
			return nil, apperr.Validation("user already owns this playbook")
		}
		existing, err := s.store.ListCollaborators(ctx, playbookID)
		if err != nil {
			return nil, err
		}
		for _, c := range existing {
			if c.UserID == invitee.ID && c.Status == playbook.StatusAccepted {
				return nil, apperr.Validation("user is already a collaborator")
			}
		}
	}

	inv := &Invitation{
		PlaybookID: playbookID,
		Email:      email,
		Permission: in.Permission,
		Token:      strings.ReplaceAll(uuid.NewString(), "-", ""),
		InvitedBy:  inviterID,
		ExpiresAt:  s.now().Add(invitationTTL),
	}
	if err := s.store.CreateInvitation(ctx, inv); err != nil {
		return nil, err
	}
	if invitee != nil {
		err := s.store.UpsertCollaborator(ctx, playbook.Collaborator{
			PlaybookID: playbookID,
			UserID:     invitee.ID,
			Permission: playbook.Permission(in.Permission),
			Status:     playbook.StatusPending,
			InvitedBy:  &inviterID,
		})
		if err != nil {
			return nil, err
		}
	}

	err = s.mail.SendInvitation(ctx, mailer.Invitation{
		To:            email,
		InviterName:   inviter.Username,
		PlaybookTitle: pb.Title,
		Permission:    in.Permission,
		AcceptURL:     s.baseURL + "/invite/" + inv.Token,
	})
	if err != nil {
		s.log.Error().Err(err).Str("invitation_id", inv.ID.String()).Msg("invitation saved but email failed")
		return inv, apperr.Downstream("invitation created but email delivery failed", err)
	}
	s.log.Info().Str("playbook_id", playbookID.String()).Str("permission", in.Permission).Msg("invitation sent")
	return inv, nil
}

// Accept turns the invitation into an accepted collaborator row for userID.
func (s *Service) Accept(ctx context.Context, userID uuid.UUID, token string) (*playbook.Collaborator, error) {
	inv, err := s.store.InvitationByToken(ctx, token)
	if apperr.Is(err, apperr.KindNotFound) {
		return nil, apperr.NotFound("invitation not found or expired")
	}
	if err != nil {
		return nil, err
	}
	if !inv.Usable(s.now()) {
		return nil, apperr.NotFound("invitation not found or expired")
	}

	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.Email != "" && !strings.EqualFold(u.Email, inv.Email) {
		return nil, apperr.Forbidden("this invitation was sent to a different email address")
	}

	c := playbook.Collaborator{
		PlaybookID: inv.PlaybookID,
		UserID:     userID,
		Username:   u.Username,
		Permission: playbook.Permission(inv.Permission),
		Status:     playbook.StatusAccepted,
		InvitedBy:  &inv.InvitedBy,
	}
	if err := s.store.UpsertCollaborator(ctx, c); err != nil {
		return nil, err
	}
	if err := s.store.MarkAccepted(ctx, inv.ID, s.now()); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Service) List(ctx context.Context, userID, playbookID uuid.UUID) ([]playbook.Collaborator, error) {
	if err := s.playbooks.CheckAccess(ctx, userID, playbookID); err != nil {
		return nil, err
	}
	return s.store.ListCollaborators(ctx, playbookID)
}

// UpdatePermission changes a collaborator's level. Only the owner may do it
// and the owner row itself is fixed.
func (s *Service) UpdatePermission(ctx context.Context, actorID, playbookID, targetID uuid.UUID, perm playbook.Permission) error {
	if perm != playbook.PermissionEdit && perm != playbook.PermissionView {
		return apperr.Validation("permission must be one of [edit view]")
	}
	if err := s.playbooks.CheckOwner(ctx, actorID, playbookID); err != nil {
		return err
	}
	if targetID == actorID {
		return apperr.Validation("cannot change the owner's permission")
	}
	return s.store.UpdatePermission(ctx, playbookID, targetID, perm)
}

// Remove deletes a collaborator. The owner may remove anyone else; other
// collaborators may only remove themselves.
func (s *Service) Remove(ctx context.Context, actorID, playbookID, targetID uuid.UUID) error {
	pb, err := s.playbooks.Lookup(ctx, playbookID)
	if err != nil {
		return err
	}
	if targetID == pb.OwnerID {
		return apperr.Validation("the owner cannot be removed")
	}
	if actorID != targetID && actorID != pb.OwnerID {
		return apperr.Forbidden("only the owner can remove collaborators")
	}
	return s.store.RemoveCollaborator(ctx, playbookID, targetID)
}
