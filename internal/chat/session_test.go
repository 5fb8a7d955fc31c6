package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"go-playbooks/internal/apperr"
	"go-playbooks/internal/debounce"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hookRemote wraps a Service so tests can fail calls or observe the
// session while a call is in flight.
type hookRemote struct {
	*Service
	calls      int
	failSend   error
	failEdit   error
	failDelete error
	duringSend func()
	typing     int
}

func (r *hookRemote) List(ctx context.Context, userID uuid.UUID, raw string) ([]*Message, error) {
	r.calls++
	return r.Service.List(ctx, userID, raw)
}

func (r *hookRemote) Send(ctx context.Context, author Author, raw, text string) (*Message, error) {
	r.calls++
	if r.duringSend != nil {
		r.duringSend()
	}
	if r.failSend != nil {
		return nil, r.failSend
	}
	return r.Service.Send(ctx, author, raw, text)
}

func (r *hookRemote) Edit(ctx context.Context, userID, messageID uuid.UUID, text string) (*Message, error) {
	r.calls++
	if r.failEdit != nil {
		return nil, r.failEdit
	}
	return r.Service.Edit(ctx, userID, messageID, text)
}

func (r *hookRemote) Delete(ctx context.Context, userID, messageID uuid.UUID) error {
	r.calls++
	if r.failDelete != nil {
		return r.failDelete
	}
	return r.Service.Delete(ctx, userID, messageID)
}

func (r *hookRemote) Typing(ctx context.Context, author Author, playbookID uuid.UUID) error {
	r.typing++
	return r.Service.Typing(ctx, author, playbookID)
}

func newSession(t *testing.T, f *fixture, author Author, opts ...SessionOption) (*Session, *hookRemote) {
	t.Helper()
	remote := &hookRemote{Service: f.svc}
	s := NewSession(remote, author, f.playbook.String(), zerolog.Nop(), opts...)
	t.Cleanup(s.Close)
	return s, remote
}

func texts(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Message.Message
	}
	return out
}

func TestSessionSendShowsPendingThenConfirms(t *testing.T) {
	f := newFixture()
	s, remote := newSession(t, f, f.alice)

	remote.duringSend = func() {
		msgs := s.Messages()
		require.Len(t, msgs, 1)
		assert.Equal(t, StatePending, msgs[0].State)
		assert.Contains(t, msgs[0].TempID, "tmp-")
		assert.Equal(t, "hello", msgs[0].Message.Message)
	}

	m, err := s.Send(context.Background(), " hello ")
	require.NoError(t, err)

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, StateConfirmed, msgs[0].State)
	assert.Equal(t, m.ID, msgs[0].ID)
	assert.Empty(t, msgs[0].TempID)
	assert.Empty(t, s.Err())
}

func TestSessionSendFailureRollsBack(t *testing.T) {
	f := newFixture()
	s, remote := newSession(t, f, f.alice)
	ctx := context.Background()

	_, err := s.Send(ctx, "kept")
	require.NoError(t, err)

	remote.failSend = apperr.Downstream("save message", errors.New("db down"))
	_, err = s.Send(ctx, "lost")
	require.Error(t, err)

	assert.Equal(t, []string{"kept"}, texts(s.Messages()))
	assert.Contains(t, s.Err(), "save message")
}

func TestSessionSendBlankMakesNoCall(t *testing.T) {
	f := newFixture()
	s, remote := newSession(t, f, f.alice)

	_, err := s.Send(context.Background(), " \n\t ")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Zero(t, remote.calls)
	assert.Empty(t, s.Messages())
}

func TestSessionRejectsUnsavedDraft(t *testing.T) {
	f := newFixture()
	remote := &hookRemote{Service: f.svc}
	s := NewSession(remote, f.alice, "temp_abc", zerolog.Nop())
	defer s.Close()
	ctx := context.Background()

	assert.True(t, apperr.Is(s.Load(ctx), apperr.KindValidation))
	_, err := s.Send(ctx, "hi")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.True(t, apperr.Is(s.NotifyTyping(ctx), apperr.KindValidation))
	assert.Zero(t, remote.calls)
	assert.Zero(t, remote.typing)
}

func TestSessionEventAfterSendIsNotDuplicated(t *testing.T) {
	f := newFixture()
	s, _ := newSession(t, f, f.alice)

	m, err := s.Send(context.Background(), "once")
	require.NoError(t, err)
	s.ApplyEvent(Event{Type: EventMessageCreated, Message: m})

	assert.Equal(t, []string{"once"}, texts(s.Messages()))
}

func TestSessionEventArrivingDuringSend(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	var sent *Message
	echo := &Service{
		store:     &echoStore{fakeStore: f.store, echo: func() *Message { return sent }},
		playbooks: f.playbooks,
		pub:       f.pub,
		log:       zerolog.Nop(),
		now:       time.Now,
	}
	remote := &hookRemote{Service: echo}
	s := NewSession(remote, f.alice, f.playbook.String(), zerolog.Nop())
	defer s.Close()

	// The broadcast lands before the send call returns.
	remote.duringSend = func() {
		m, err := f.svc.Send(ctx, f.alice, f.playbook.String(), "raced")
		require.NoError(t, err)
		sent = m
		s.ApplyEvent(Event{Type: EventMessageCreated, Message: m})
	}

	m, err := s.Send(ctx, "raced")
	require.NoError(t, err)
	assert.Equal(t, sent.ID, m.ID)

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, sent.ID, msgs[0].ID)
	assert.Equal(t, StateConfirmed, msgs[0].State)
}

// echoStore returns an already inserted message instead of creating one.
type echoStore struct {
	*fakeStore
	echo func() *Message
}

func (e *echoStore) Insert(_ context.Context, m *Message) error {
	*m = *e.echo().clone()
	return nil
}

func TestSessionEditAndDelete(t *testing.T) {
	f := newFixture()
	s, _ := newSession(t, f, f.alice)
	ctx := context.Background()

	m, err := s.Send(ctx, "draft")
	require.NoError(t, err)

	require.NoError(t, s.Edit(ctx, m.ID, "final"))
	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "final", msgs[0].Message.Message)
	assert.NotNil(t, msgs[0].EditedAt)

	require.NoError(t, s.Delete(ctx, m.ID))
	assert.Empty(t, s.Messages())
}

func TestSessionEditFailureReloads(t *testing.T) {
	f := newFixture()
	s, remote := newSession(t, f, f.alice)
	ctx := context.Background()

	m, err := s.Send(ctx, "original")
	require.NoError(t, err)

	remote.failEdit = apperr.Downstream("update message", errors.New("timeout"))
	require.Error(t, s.Edit(ctx, m.ID, "changed"))
	assert.Equal(t, []string{"original"}, texts(s.Messages()))

	remote.failDelete = apperr.Downstream("delete message", errors.New("timeout"))
	require.Error(t, s.Delete(ctx, m.ID))
	assert.Equal(t, []string{"original"}, texts(s.Messages()))
	assert.Contains(t, s.Err(), "delete message")
}

func TestSessionCannotChangeOthersMessages(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	m, err := f.svc.Send(ctx, f.bob, f.playbook.String(), "bob's")
	require.NoError(t, err)

	s, remote := newSession(t, f, f.alice)
	require.NoError(t, s.Load(ctx))
	before := remote.calls

	assert.True(t, apperr.Is(s.Edit(ctx, m.ID, "mine now"), apperr.KindForbidden))
	assert.True(t, apperr.Is(s.Delete(ctx, m.ID), apperr.KindForbidden))
	assert.True(t, apperr.Is(s.Delete(ctx, uuid.New()), apperr.KindNotFound))
	assert.Equal(t, before, remote.calls)
	assert.Equal(t, []string{"bob's"}, texts(s.Messages()))
}

func TestSessionApplyEvents(t *testing.T) {
	f := newFixture()
	s, _ := newSession(t, f, f.alice)

	m := &Message{ID: uuid.New(), PlaybookID: f.playbook, UserID: f.bob.ID, Username: "bob", Message: "one"}
	s.ApplyEvent(Event{Type: EventMessageCreated, Message: m})
	s.ApplyEvent(Event{Type: EventMessageCreated, Message: m})
	assert.Equal(t, []string{"one"}, texts(s.Messages()))

	updated := *m
	updated.Message = "uno"
	s.ApplyEvent(Event{Type: EventMessageUpdated, Message: &updated})
	assert.Equal(t, []string{"uno"}, texts(s.Messages()))

	s.ApplyEvent(Event{Type: EventMessageDeleted, MessageID: m.ID})
	assert.Empty(t, s.Messages())

	s.ApplyEvent(Event{Type: EventMessageDeleted, MessageID: uuid.New()})
	s.ApplyEvent(Event{Type: EventError, Error: "ignored"})
	assert.Empty(t, s.Messages())
}

func TestSessionTypers(t *testing.T) {
	f := newFixture()
	s, _ := newSession(t, f, f.alice)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.ApplyEvent(Event{Type: EventTyping, UserID: f.bob.ID, Username: "bob", At: now})
	s.ApplyEvent(Event{Type: EventTyping, UserID: f.alice.ID, Username: "alice", At: now})
	assert.Equal(t, []string{"bob"}, s.Typers())

	now = now.Add(DefaultTypingDelay + time.Second)
	assert.Empty(t, s.Typers())

	s.ApplyEvent(Event{Type: EventTyping, UserID: f.bob.ID, Username: "bob", At: now})
	s.ApplyEvent(Event{Type: EventMessageCreated, Message: &Message{ID: uuid.New(), UserID: f.bob.ID, Message: "done"}})
	assert.Empty(t, s.Typers())
}

func TestSessionNotifyTypingOncePerBurst(t *testing.T) {
	f := newFixture()
	clock := debounce.NewManualClock()
	s, remote := newSession(t, f, f.alice, WithTypingDelay(3*time.Second, debounce.WithAfterFunc(clock.AfterFunc)))
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, s.NotifyTyping(ctx))
		clock.Advance(time.Second)
	}
	assert.Equal(t, 1, remote.typing)
	assert.True(t, s.IsTyping())

	clock.Advance(3 * time.Second)
	assert.False(t, s.IsTyping())

	require.NoError(t, s.NotifyTyping(ctx))
	assert.Equal(t, 2, remote.typing)
	assert.Equal(t, EventTyping, f.pub.events[len(f.pub.events)-1].Type)
}

func TestSessionSendSurvivesReloadDuringCall(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.svc.Send(ctx, f.bob, f.playbook.String(), "earlier")
	require.NoError(t, err)

	s, remote := newSession(t, f, f.alice)
	// The thread is reloaded from the server before the send lands, which
	// drops the pending entry.
	remote.duringSend = func() {
		remote.duringSend = nil
		require.NoError(t, s.Load(ctx))
	}

	m, err := s.Send(ctx, "mine")
	require.NoError(t, err)

	msgs := s.Messages()
	assert.Equal(t, []string{"earlier", "mine"}, texts(msgs))
	assert.Equal(t, m.ID, msgs[1].ID)
	assert.Equal(t, StateConfirmed, msgs[1].State)
}
