package playbook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"go-playbooks/internal/apperr"
	"go-playbooks/internal/debounce"
	"go-playbooks/internal/shortid"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, *memStore, *debounce.ManualClock, uuid.UUID) {
	t.Helper()
	store := newMemStore()
	clock := debounce.NewManualClock()
	user := uuid.New()
	m := NewManager(NewService(store, zerolog.Nop()), user, zerolog.Nop(),
		WithAutosaveDelay(DefaultAutosaveDelay, debounce.WithAfterFunc(clock.AfterFunc)))
	t.Cleanup(m.Close)
	return m, store, clock, user
}

func TestAutosaveDebouncesEdits(t *testing.T) {
	m, store, clock, _ := newTestManager(t)
	ctx := context.Background()

	m.New("Incident response")
	_, err := m.Save(ctx)
	require.NoError(t, err)
	before := store.updateCount()

	for i := 0; i < 5; i++ {
		m.Edit(json.RawMessage(fmt.Sprintf(`{"rev":%d}`, i)))
		clock.Advance(1900 * time.Millisecond)
	}
	assert.Equal(t, before, store.updateCount(), "no save while edits keep arriving")

	clock.Advance(99 * time.Millisecond)
	assert.Equal(t, before, store.updateCount())

	clock.Advance(time.Millisecond)
	assert.Equal(t, before+1, store.updateCount(), "exactly one save, two seconds after the last edit")

	saved, err := store.Get(ctx, m.Current().ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"rev":4}`, string(saved.Content))

	clock.Advance(time.Hour)
	assert.Equal(t, before+1, store.updateCount())
}

func TestAutosaveFailureIsSwallowed(t *testing.T) {
	m, store, clock, _ := newTestManager(t)
	ctx := context.Background()

	m.New("Draft")
	_, err := m.Save(ctx)
	require.NoError(t, err)

	store.failUpdate = apperr.Downstream("update playbook", errors.New("connection reset"))
	m.Edit(json.RawMessage(`{"a":1}`))
	clock.Advance(DefaultAutosaveDelay)
	assert.Empty(t, m.Err(), "auto-save errors are not surfaced")

	_, err = m.Save(ctx)
	require.Error(t, err)
	assert.Contains(t, m.Err(), "connection reset")
}

func TestEditsOnUnsavedPlaybookStayLocal(t *testing.T) {
	m, store, clock, _ := newTestManager(t)

	m.New("Local only")
	m.Edit(json.RawMessage(`{"x":true}`))
	clock.Advance(time.Minute)
	assert.Zero(t, store.updateCount())
	assert.JSONEq(t, `{"x":true}`, string(m.Current().Content))
}

func TestLoadChecksOwnership(t *testing.T) {
	m, store, _, user := newTestManager(t)
	ctx := context.Background()
	svc := NewService(store, zerolog.Nop())

	mine, err := svc.Create(ctx, user, CreateInput{Title: "Mine"})
	require.NoError(t, err)
	got, err := m.Load(ctx, shortid.ToShortID(mine.ID))
	require.NoError(t, err)
	assert.Equal(t, mine.ID, got.ID)

	other := uuid.New()
	theirs, err := svc.Create(ctx, other, CreateInput{Title: "Theirs", IsPublic: true})
	require.NoError(t, err)
	_, err = m.Load(ctx, theirs.ID.String())
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
	assert.NotEmpty(t, m.Err())
	assert.Equal(t, mine.ID, m.Current().ID, "failed load keeps the current playbook")
}

func TestListStaysInSync(t *testing.T) {
	m, _, _, _ := newTestManager(t)
	ctx := context.Background()

	m.New("First")
	first, err := m.Save(ctx)
	require.NoError(t, err)
	m.New("Second")
	_, err = m.Save(ctx)
	require.NoError(t, err)
	require.Len(t, m.Playbooks(), 2)

	dup, err := m.Duplicate(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, dup.ID, m.Playbooks()[0].ID)

	title := "First, renamed"
	_, err = m.Update(ctx, first.ID, UpdateInput{Title: &title})
	require.NoError(t, err)

	require.NoError(t, m.Delete(ctx, dup.ID))
	list := m.Playbooks()
	require.Len(t, list, 2)
	var titles []string
	for _, p := range list {
		titles = append(titles, p.Title)
	}
	assert.Contains(t, titles, title)

	refreshed, err := m.Refresh(ctx)
	require.NoError(t, err)
	assert.Len(t, refreshed, 2)
}

func TestFlushPersistsPendingEdit(t *testing.T) {
	m, store, _, _ := newTestManager(t)
	ctx := context.Background()

	m.New("Flush me")
	_, err := m.Save(ctx)
	require.NoError(t, err)
	before := store.updateCount()

	m.Edit(json.RawMessage(`{"final":true}`))
	assert.True(t, m.Flush())
	assert.Equal(t, before+1, store.updateCount())
}

// hookBackend runs a callback while a Create or Update call is in flight.
type hookBackend struct {
	*Service
	during func()
}

func (b *hookBackend) Create(ctx context.Context, ownerID uuid.UUID, in CreateInput) (*Playbook, error) {
	if b.during != nil {
		b.during()
	}
	return b.Service.Create(ctx, ownerID, in)
}

func (b *hookBackend) Update(ctx context.Context, userID, id uuid.UUID, in UpdateInput) (*Playbook, error) {
	if b.during != nil {
		b.during()
	}
	return b.Service.Update(ctx, userID, id, in)
}

func TestSaveKeepsEditsMadeDuringTheCall(t *testing.T) {
	store := newMemStore()
	clock := debounce.NewManualClock()
	backend := &hookBackend{Service: NewService(store, zerolog.Nop())}
	m := NewManager(backend, uuid.New(), zerolog.Nop(),
		WithAutosaveDelay(DefaultAutosaveDelay, debounce.WithAfterFunc(clock.AfterFunc)))
	t.Cleanup(m.Close)
	ctx := context.Background()

	t.Run("create", func(t *testing.T) {
		m.New("Runbook")
		m.Edit(json.RawMessage(`{"rev":1}`))
		backend.during = func() {
			backend.during = nil
			m.Edit(json.RawMessage(`{"rev":2}`))
		}

		saved, err := m.Save(ctx)
		require.NoError(t, err)
		assert.JSONEq(t, `{"rev":1}`, string(saved.Content))
		assert.Equal(t, saved.ID, m.Current().ID)
		assert.JSONEq(t, `{"rev":2}`, string(m.Current().Content))

		clock.Advance(DefaultAutosaveDelay)
		stored, err := store.Get(ctx, saved.ID)
		require.NoError(t, err)
		assert.JSONEq(t, `{"rev":2}`, string(stored.Content))
	})

	t.Run("update", func(t *testing.T) {
		m.Edit(json.RawMessage(`{"rev":3}`))
		backend.during = func() {
			backend.during = nil
			m.Edit(json.RawMessage(`{"rev":4}`))
		}

		_, err := m.Save(ctx)
		require.NoError(t, err)
		assert.JSONEq(t, `{"rev":4}`, string(m.Current().Content))

		clock.Advance(DefaultAutosaveDelay)
		stored, err := store.Get(ctx, m.Current().ID)
		require.NoError(t, err)
		assert.JSONEq(t, `{"rev":4}`, string(stored.Content))
	})
}
