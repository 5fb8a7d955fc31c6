package collab

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go-playbooks/internal/apperr"
	"go-playbooks/internal/mailer"
	"go-playbooks/internal/playbook"
	"go-playbooks/internal/user"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu            sync.Mutex
	invitations   map[string]*Invitation
	collaborators map[[2]uuid.UUID]playbook.Collaborator
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		invitations:   map[string]*Invitation{},
		collaborators: map[[2]uuid.UUID]playbook.Collaborator{},
	}
}

func (f *fakeStore) CreateInvitation(_ context.Context, inv *Invitation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv.ID = uuid.New()
	inv.CreatedAt = time.Now()
	cp := *inv
	f.invitations[inv.Token] = &cp
	return nil
}

func (f *fakeStore) InvitationByToken(_ context.Context, token string) (*Invitation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invitations[token]
	if !ok {
		return nil, apperr.NotFound("invitation not found")
	}
	cp := *inv
	return &cp, nil
}

func (f *fakeStore) MarkAccepted(_ context.Context, id uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, inv := range f.invitations {
		if inv.ID == id {
			inv.AcceptedAt = &at
			return nil
		}
	}
	return apperr.NotFound("invitation not found")
}

func (f *fakeStore) UpsertCollaborator(_ context.Context, c playbook.Collaborator) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.collaborators[[2]uuid.UUID{c.PlaybookID, c.UserID}] = c
	return nil
}

func (f *fakeStore) ListCollaborators(_ context.Context, playbookID uuid.UUID) ([]playbook.Collaborator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []playbook.Collaborator{}
	for k, c := range f.collaborators {
		if k[0] == playbookID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdatePermission(_ context.Context, playbookID, userID uuid.UUID, perm playbook.Permission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := [2]uuid.UUID{playbookID, userID}
	c, ok := f.collaborators[k]
	if !ok {
		return apperr.NotFound("collaborator not found")
	}
	c.Permission = perm
	f.collaborators[k] = c
	return nil
}

func (f *fakeStore) RemoveCollaborator(_ context.Context, playbookID, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := [2]uuid.UUID{playbookID, userID}
	if _, ok := f.collaborators[k]; !ok {
		return apperr.NotFound("collaborator not found")
	}
	delete(f.collaborators, k)
	return nil
}

// fakePlaybooks resolves permissions from the owner plus the fake store's
// accepted collaborator rows.
type fakePlaybooks struct {
	pb    *playbook.Playbook
	store *fakeStore
}

func (f *fakePlaybooks) Lookup(_ context.Context, id uuid.UUID) (*playbook.Playbook, error) {
	if id != f.pb.ID {
		return nil, apperr.NotFound("playbook not found")
	}
	return f.pb.Clone(), nil
}

func (f *fakePlaybooks) perm(userID uuid.UUID) playbook.Permission {
	if userID == f.pb.OwnerID {
		return playbook.PermissionOwner
	}
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	c, ok := f.store.collaborators[[2]uuid.UUID{f.pb.ID, userID}]
	if !ok || c.Status != playbook.StatusAccepted {
		return ""
	}
	return c.Permission
}

func (f *fakePlaybooks) CheckAccess(_ context.Context, userID, _ uuid.UUID) error {
	if f.perm(userID) == "" {
		return apperr.Forbidden("no access")
	}
	return nil
}

func (f *fakePlaybooks) CheckEditAccess(_ context.Context, userID, _ uuid.UUID) error {
	if !f.perm(userID).CanEdit() {
		return apperr.Forbidden("no edit access")
	}
	return nil
}

func (f *fakePlaybooks) CheckOwner(_ context.Context, userID, _ uuid.UUID) error {
	if f.perm(userID) != playbook.PermissionOwner {
		return apperr.Forbidden("owner only")
	}
	return nil
}

type fakeUsers map[uuid.UUID]*user.User

func (f fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*user.User, error) {
	if u, ok := f[id]; ok {
		return u, nil
	}
	return nil, apperr.NotFound("user not found")
}

func (f fakeUsers) GetByEmail(_ context.Context, email string) (*user.User, error) {
	for _, u := range f {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return nil, apperr.NotFound("user not found")
}

type recordingSender struct {
	sent []mailer.Invitation
	err  error
}

func (r *recordingSender) SendInvitation(_ context.Context, inv mailer.Invitation) error {
	r.sent = append(r.sent, inv)
	return r.err
}

type fixture struct {
	svc   *Service
	store *fakeStore
	mail  *recordingSender
	pb    *playbook.Playbook
	owner *user.User
	bob   *user.User
}

func newFixture() *fixture {
	owner := &user.User{ID: uuid.New(), Username: "ada", Email: "ada@example.com"}
	bob := &user.User{ID: uuid.New(), Username: "bob", Email: "bob@example.com"}
	pb := &playbook.Playbook{ID: uuid.New(), Title: "Incident response", OwnerID: owner.ID}
	store := newFakeStore()
	mail := &recordingSender{}
	users := fakeUsers{owner.ID: owner, bob.ID: bob}
	svc := NewService(store, &fakePlaybooks{pb: pb, store: store}, users, mail, "https://app.example.com/", zerolog.Nop())
	return &fixture{svc: svc, store: store, mail: mail, pb: pb, owner: owner, bob: bob}
}

func TestInviteRegisteredUserCreatesPendingRowAndSendsMail(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	inv, err := f.svc.Invite(ctx, f.owner.ID, InviteInput{
		PlaybookID: f.pb.ID.String(), Email: "  BOB@example.com ", Permission: "edit",
	})
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", inv.Email)
	assert.Len(t, inv.Token, 32)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), inv.ExpiresAt, time.Minute)

	c := f.store.collaborators[[2]uuid.UUID{f.pb.ID, f.bob.ID}]
	assert.Equal(t, playbook.StatusPending, c.Status)
	assert.Equal(t, playbook.PermissionEdit, c.Permission)

	require.Len(t, f.mail.sent, 1)
	assert.Equal(t, "https://app.example.com/invite/"+inv.Token, f.mail.sent[0].AcceptURL)
	assert.Equal(t, "ada", f.mail.sent[0].InviterName)
	assert.Equal(t, "Incident response", f.mail.sent[0].PlaybookTitle)
}

func TestInviteRejections(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	id := f.pb.ID.String()

	_, err := f.svc.Invite(ctx, f.owner.ID, InviteInput{PlaybookID: id, Email: "ada@example.com", Permission: "view"})
	assert.True(t, apperr.Is(err, apperr.KindValidation), "self invite")

	_, err = f.svc.Invite(ctx, f.owner.ID, InviteInput{PlaybookID: id, Email: "x@example.com", Permission: "owner"})
	assert.True(t, apperr.Is(err, apperr.KindValidation), "owner permission")

	_, err = f.svc.Invite(ctx, f.bob.ID, InviteInput{PlaybookID: id, Email: "x@example.com", Permission: "view"})
	assert.True(t, apperr.Is(err, apperr.KindForbidden), "no edit access")

	_, err = f.svc.Invite(ctx, f.owner.ID, InviteInput{PlaybookID: "nope", Email: "x@example.com", Permission: "view"})
	assert.True(t, apperr.Is(err, apperr.KindValidation), "bad playbook id")

	require.NoError(t, f.store.UpsertCollaborator(ctx, playbook.Collaborator{
		PlaybookID: f.pb.ID, UserID: f.bob.ID, Permission: playbook.PermissionView, Status: playbook.StatusAccepted,
	}))
	_, err = f.svc.Invite(ctx, f.owner.ID, InviteInput{PlaybookID: id, Email: "bob@example.com", Permission: "edit"})
	assert.True(t, apperr.Is(err, apperr.KindValidation), "already a collaborator")
	assert.Empty(t, f.mail.sent)
}

func TestInviteKeepsInvitationWhenMailFails(t *testing.T) {
	f := newFixture()
	f.mail.err = errors.New("smtp down")

	inv, err := f.svc.Invite(context.Background(), f.owner.ID, InviteInput{
		PlaybookID: f.pb.ID.String(), Email: "new@example.com", Permission: "view",
	})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindDownstream))
	require.NotNil(t, inv)
	_, ok := f.store.invitations[inv.Token]
	assert.True(t, ok)
}

func TestAcceptInvitation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	inv, err := f.svc.Invite(ctx, f.owner.ID, InviteInput{
		PlaybookID: f.pb.ID.String(), Email: "bob@example.com", Permission: "view",
	})
	require.NoError(t, err)

	c, err := f.svc.Accept(ctx, f.bob.ID, inv.Token)
	require.NoError(t, err)
	assert.Equal(t, playbook.StatusAccepted, c.Status)
	assert.Equal(t, playbook.PermissionView, c.Permission)
	assert.Equal(t, playbook.StatusAccepted, f.store.collaborators[[2]uuid.UUID{f.pb.ID, f.bob.ID}].Status)

	_, err = f.svc.Accept(ctx, f.bob.ID, inv.Token)
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "already used")

	_, err = f.svc.Accept(ctx, f.bob.ID, "missing")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestAcceptRejectsExpiredAndMismatchedEmail(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	inv, err := f.svc.Invite(ctx, f.owner.ID, InviteInput{
		PlaybookID: f.pb.ID.String(), Email: "carol@example.com", Permission: "view",
	})
	require.NoError(t, err)

	_, err = f.svc.Accept(ctx, f.bob.ID, inv.Token)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	f.svc.now = func() time.Time { return time.Now().Add(8 * 24 * time.Hour) }
	_, err = f.svc.Accept(ctx, f.bob.ID, inv.Token)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestUpdatePermissionAndRemove(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	require.NoError(t, f.store.UpsertCollaborator(ctx, playbook.Collaborator{
		PlaybookID: f.pb.ID, UserID: f.bob.ID, Permission: playbook.PermissionView, Status: playbook.StatusAccepted,
	}))

	err := f.svc.UpdatePermission(ctx, f.bob.ID, f.pb.ID, f.bob.ID, playbook.PermissionEdit)
	assert.True(t, apperr.Is(err, apperr.KindForbidden), "only owner")

	err = f.svc.UpdatePermission(ctx, f.owner.ID, f.pb.ID, f.owner.ID, playbook.PermissionView)
	assert.True(t, apperr.Is(err, apperr.KindValidation), "owner row fixed")

	require.NoError(t, f.svc.UpdatePermission(ctx, f.owner.ID, f.pb.ID, f.bob.ID, playbook.PermissionEdit))
	list, err := f.svc.List(ctx, f.bob.ID, f.pb.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, playbook.PermissionEdit, list[0].Permission)

	err = f.svc.Remove(ctx, f.bob.ID, f.pb.ID, f.owner.ID)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	stranger := uuid.New()
	err = f.svc.Remove(ctx, stranger, f.pb.ID, f.bob.ID)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	require.NoError(t, f.svc.Remove(ctx, f.bob.ID, f.pb.ID, f.bob.ID), "collaborators may leave")
	_, err = f.svc.List(ctx, f.bob.ID, f.pb.ID)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}
