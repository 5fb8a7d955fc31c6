package marketplace

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go-playbooks/internal/apperr"
	"go-playbooks/internal/debounce"
	"go-playbooks/internal/playbook"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu        sync.Mutex
	listing   []*playbook.Playbook
	favorites Set
	purchases Set
	listErr   error
	favErr    error
	toggleErr error
	listCalls int
	favCalls  int
	mutations int
}

func newFakeBackend(listing ...*playbook.Playbook) *fakeBackend {
	return &fakeBackend{listing: listing, favorites: Set{}, purchases: Set{}}
}

func (f *fakeBackend) Listing(context.Context) ([]*playbook.Playbook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]*playbook.Playbook(nil), f.listing...), nil
}

func (f *fakeBackend) FavoriteIDs(context.Context, uuid.UUID) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.favCalls++
	if f.favErr != nil {
		return nil, f.favErr
	}
	return f.favorites.IDs(), nil
}

func (f *fakeBackend) PurchaseIDs(context.Context, uuid.UUID) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.purchases.IDs(), nil
}

func (f *fakeBackend) AddFavorite(_ context.Context, _, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mutations++
	if f.toggleErr != nil {
		return f.toggleErr
	}
	f.favorites[id] = struct{}{}
	return nil
}

func (f *fakeBackend) RemoveFavorite(_ context.Context, _, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mutations++
	if f.toggleErr != nil {
		return f.toggleErr
	}
	delete(f.favorites, id)
	return nil
}

func newTestViewModel(t *testing.T, backend Backend, user uuid.UUID) (*ViewModel, *debounce.ManualClock) {
	t.Helper()
	clock := debounce.NewManualClock()
	vm := NewViewModel(backend, user, zerolog.Nop(),
		WithSearchDelay(DefaultSearchDelay, debounce.WithAfterFunc(clock.AfterFunc)))
	t.Cleanup(vm.Close)
	return vm, clock
}

func TestRefreshLoadsAllThreeSets(t *testing.T) {
	a, b := pb("A", 1, 1, 1, 1), pb("B", 2, 2, 2, 2)
	backend := newFakeBackend(a, b)
	backend.favorites[a.ID] = struct{}{}
	backend.purchases[b.ID] = struct{}{}
	vm, _ := newTestViewModel(t, backend, uuid.New())

	require.NoError(t, vm.Refresh(context.Background()))
	items := vm.Items()
	require.Len(t, items, 2)
	assert.True(t, vm.IsFavorite(a.ID))
	assert.True(t, vm.IsPurchased(b.ID))
	assert.Empty(t, vm.Err())
}

func TestAnonymousUserGetsEmptySets(t *testing.T) {
	backend := newFakeBackend(pb("A", 1, 1, 1, 1))
	vm, _ := newTestViewModel(t, backend, uuid.Nil)

	require.NoError(t, vm.Refresh(context.Background()))
	assert.Zero(t, backend.favCalls, "no remote call without a user")
	assert.Len(t, vm.Items(), 1)

	_, err := vm.ToggleFavorite(context.Background(), uuid.New())
	assert.True(t, apperr.Is(err, apperr.KindUnauthenticated))
	assert.Zero(t, backend.mutations)
}

func TestFetchFailureKeepsPreviousListing(t *testing.T) {
	backend := newFakeBackend(pb("A", 1, 1, 1, 1))
	vm, _ := newTestViewModel(t, backend, uuid.New())
	ctx := context.Background()
	require.NoError(t, vm.FetchListing(ctx))

	backend.listErr = apperr.Downstream("playbook query failed", errors.New("conn reset"))
	require.Error(t, vm.FetchListing(ctx))
	assert.Len(t, vm.Items(), 1)
	assert.Contains(t, vm.Err(), "playbook query failed")

	backend.listErr = nil
	require.NoError(t, vm.FetchListing(ctx))
	assert.Empty(t, vm.Err(), "success clears the message")
}

func TestToggleFavoriteTwiceRestoresSet(t *testing.T) {
	a := pb("A", 1, 1, 1, 1)
	backend := newFakeBackend(a)
	vm, _ := newTestViewModel(t, backend, uuid.New())
	ctx := context.Background()
	require.NoError(t, vm.Refresh(ctx))

	on, err := vm.ToggleFavorite(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, on)
	assert.True(t, vm.Items()[0].IsFavorite)

	on, err = vm.ToggleFavorite(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, on)
	assert.False(t, vm.IsFavorite(a.ID))
	assert.Empty(t, backend.favorites)
	assert.Equal(t, 2, backend.mutations)
}

func TestToggleFailureLeavesStateUntouched(t *testing.T) {
	a := pb("A", 1, 1, 1, 1)
	backend := newFakeBackend(a)
	vm, _ := newTestViewModel(t, backend, uuid.New())
	ctx := context.Background()
	require.NoError(t, vm.Refresh(ctx))

	notified := 0
	vm.Subscribe(func() { notified++ })
	backend.toggleErr = errors.New("network down")

	_, err := vm.ToggleFavorite(ctx, a.ID)
	require.Error(t, err)
	assert.False(t, vm.IsFavorite(a.ID))
	assert.False(t, vm.Items()[0].IsFavorite)
	assert.Zero(t, notified)
}

func TestSearchIsDebounced(t *testing.T) {
	backend := newFakeBackend(pb("Incident", 1, 1, 1, 1), pb("Onboarding", 1, 1, 1, 2))
	vm, clock := newTestViewModel(t, backend, uuid.New())
	require.NoError(t, vm.FetchListing(context.Background()))

	var notified atomic.Int32
	unsubscribe := vm.Subscribe(func() { notified.Add(1) })

	vm.SetSearchQuery("inc")
	clock.Advance(300 * time.Millisecond)
	vm.SetSearchQuery("onb")
	clock.Advance(499 * time.Millisecond)
	assert.Len(t, vm.Items(), 2, "not applied while typing")
	assert.Zero(t, notified.Load())

	clock.Advance(time.Millisecond)
	assert.Equal(t, "onb", vm.Query())
	assert.Equal(t, []string{"Onboarding"}, titles(vm.Items()))
	assert.EqualValues(t, 1, notified.Load())

	unsubscribe()
	vm.SetSearchQuery("")
	clock.Advance(time.Second)
	assert.Len(t, vm.Items(), 2)
	assert.EqualValues(t, 1, notified.Load())
}

func TestCloseCancelsPendingSearch(t *testing.T) {
	backend := newFakeBackend(pb("Incident", 1, 1, 1, 1), pb("Onboarding", 1, 1, 1, 2))
	clock := debounce.NewManualClock()
	vm := NewViewModel(backend, uuid.New(), zerolog.Nop(),
		WithSearchDelay(DefaultSearchDelay, debounce.WithAfterFunc(clock.AfterFunc)))
	require.NoError(t, vm.FetchListing(context.Background()))

	vm.SetSearchQuery("inc")
	vm.Close()
	clock.Advance(time.Second)
	assert.Empty(t, vm.Query())
	assert.Len(t, vm.Items(), 2)
}

func TestUpdateFiltersAndPage(t *testing.T) {
	var listing []*playbook.Playbook
	for i := 0; i < 5; i++ {
		listing = append(listing, pb(string(rune('A'+i)), float64(i), 0, 0, i))
	}
	vm, _ := newTestViewModel(t, newFakeBackend(listing...), uuid.New())
	require.NoError(t, vm.FetchListing(context.Background()))

	key, dir := SortPrice, Asc
	vm.UpdateFilters(FilterPatch{SortBy: &key, SortDir: &dir})
	assert.Equal(t, []string{"A", "B", "C", "D", "E"}, titles(vm.Items()))

	page := vm.Page(2, 2)
	assert.Equal(t, []string{"C", "D"}, titles(page.Items))
	assert.Equal(t, 3, page.Pages)

	tags := []string{"none"}
	vm.UpdateFilters(FilterPatch{Tags: &tags})
	assert.Empty(t, vm.Items())
	assert.Equal(t, SortPrice, vm.Filters().SortBy)
}
