package drafts_test

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"

	"go-playbooks/internal/apperr"
	"go-playbooks/internal/drafts"
	"go-playbooks/internal/playbook"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCreator struct {
	created []playbook.CreateInput
}

func (f *fakeCreator) Create(_ context.Context, ownerID uuid.UUID, in playbook.CreateInput) (*playbook.Playbook, error) {
	f.created = append(f.created, in)
	return &playbook.Playbook{ID: uuid.New(), Title: in.Title, Content: in.Content, OwnerID: ownerID}, nil
}

func TestDraftIDs(t *testing.T) {
	id := drafts.NewID()
	assert.True(t, drafts.IsTemporaryID(id))
	assert.False(t, drafts.IsTemporaryID(uuid.NewString()))
}

func TestDraftLimit(t *testing.T) {
	ctx := context.Background()
	svc := drafts.NewService(drafts.NewMemoryStore(), &fakeCreator{}, zerolog.Nop())

	_, err := svc.Create(ctx, "s1", drafts.Input{Title: "one"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, "s1", drafts.Input{Title: "two"})
	require.NoError(t, err)

	_, err = svc.Create(ctx, "s1", drafts.Input{Title: "three"})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	// The cap is per session.
	_, err = svc.Create(ctx, "s2", drafts.Input{Title: "other session"})
	require.NoError(t, err)

	list, err := svc.List(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestDraftLimitUnderConcurrentCreates(t *testing.T) {
	ctx := context.Background()
	store := drafts.NewMemoryStore()
	svc := drafts.NewService(store, &fakeCreator{}, zerolog.Nop())

	var (
		wg       sync.WaitGroup
		created  atomic.Int32
		rejected atomic.Int32
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Create(ctx, "busy", drafts.Input{Title: "race"})
			switch {
			case err == nil:
				created.Add(1)
			case apperr.Is(err, apperr.KindValidation):
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(drafts.MaxDrafts), created.Load())
	assert.Equal(t, int32(5-drafts.MaxDrafts), rejected.Load())
	list, err := store.List(ctx, "busy")
	require.NoError(t, err)
	assert.Len(t, list, drafts.MaxDrafts)
}

func TestUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	svc := drafts.NewService(drafts.NewMemoryStore(), &fakeCreator{}, zerolog.Nop())

	d, err := svc.Create(ctx, "s", drafts.Input{})
	require.NoError(t, err)
	assert.Equal(t, "Untitled Playbook", d.Title)

	up, err := svc.Update(ctx, "s", d.ID, drafts.Input{Content: json.RawMessage(`{"v":2}`)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(up.Content))

	require.NoError(t, svc.Delete(ctx, "s", d.ID))
	_, err = svc.Get(ctx, "s", d.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = svc.Get(ctx, "s", uuid.NewString())
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestPromote(t *testing.T) {
	ctx := context.Background()
	creator := &fakeCreator{}
	svc := drafts.NewService(drafts.NewMemoryStore(), creator, zerolog.Nop())
	owner := uuid.New()

	d, err := svc.Create(ctx, "s", drafts.Input{Title: "Keep me", Content: json.RawMessage(`{"k":1}`)})
	require.NoError(t, err)

	p, err := svc.Promote(ctx, "s", d.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, owner, p.OwnerID)
	require.Len(t, creator.created, 1)
	assert.Equal(t, "Keep me", creator.created[0].Title)

	list, err := svc.List(ctx, "s")
	require.NoError(t, err)
	assert.Empty(t, list, "promoted draft frees its slot")
}
