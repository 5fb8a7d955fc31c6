package marketplace

import (
	"context"
	"sync"
	"time"

	"go-playbooks/internal/apperr"
	"go-playbooks/internal/debounce"
	"go-playbooks/internal/playbook"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const DefaultSearchDelay = 500 * time.Millisecond

// Backend is the remote side of the view-model. *Service satisfies it.
type Backend interface {
	Listing(ctx context.Context) ([]*playbook.Playbook, error)
	FavoriteIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	PurchaseIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	AddFavorite(ctx context.Context, userID, playbookID uuid.UUID) error
	RemoveFavorite(ctx context.Context, userID, playbookID uuid.UUID) error
}

type Option func(*ViewModel)

func WithSearchDelay(d time.Duration, opts ...debounce.Option) Option {
	return func(vm *ViewModel) { vm.search = debounce.New(d, opts...) }
}

// ViewModel keeps the marketplace listing and one user's favorite and
// purchase sets in memory and derives the visible items from them. A zero
// user id means an anonymous visitor.
type ViewModel struct {
	backend Backend
	userID  uuid.UUID
	log     zerolog.Logger
	search  *debounce.Debouncer

	mu        sync.Mutex
	listing   []*playbook.Playbook
	favorites Set
	purchases Set
	query     string
	filters   Filters
	items     []Item
	err       string
	subs      map[int]func()
	nextSub   int
}

func NewViewModel(backend Backend, userID uuid.UUID, log zerolog.Logger, opts ...Option) *ViewModel {
	vm := &ViewModel{
		backend:   backend,
		userID:    userID,
		log:       log,
		favorites: Set{},
		purchases: Set{},
		filters:   DefaultFilters(),
		items:     []Item{},
		subs:      map[int]func(){},
	}
	for _, opt := range opts {
		opt(vm)
	}
	if vm.search == nil {
		vm.search = debounce.New(DefaultSearchDelay)
	}
	return vm
}

// FetchListing replaces the cached listing. On failure the previous listing
// stays and the message is kept in Err.
func (vm *ViewModel) FetchListing(ctx context.Context) error {
	list, err := vm.backend.Listing(ctx)
	if err != nil {
		vm.log.Error().Err(err).Msg("fetch marketplace listing failed")
		vm.update(func() { vm.err = err.Error() })
		return err
	}
	vm.update(func() {
		vm.listing = list
		vm.err = ""
	})
	return nil
}

func (vm *ViewModel) FetchUserFavorites(ctx context.Context) error {
	if vm.userID == uuid.Nil {
		vm.update(func() { vm.favorites = Set{} })
		return nil
	}
	ids, err := vm.backend.FavoriteIDs(ctx, vm.userID)
	if err != nil {
		vm.log.Error().Err(err).Msg("fetch favorites failed")
		vm.update(func() { vm.err = err.Error() })
		return err
	}
	vm.update(func() { vm.favorites = NewSet(ids...) })
	return nil
}

func (vm *ViewModel) FetchUserPurchases(ctx context.Context) error {
	if vm.userID == uuid.Nil {
		vm.update(func() { vm.purchases = Set{} })
		return nil
	}
	ids, err := vm.backend.PurchaseIDs(ctx, vm.userID)
	if err != nil {
		vm.log.Error().Err(err).Msg("fetch purchases failed")
		vm.update(func() { vm.err = err.Error() })
		return err
	}
	vm.update(func() { vm.purchases = NewSet(ids...) })
	return nil
}

// Refresh runs the three fetches concurrently and returns the first error.
func (vm *ViewModel) Refresh(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return vm.FetchListing(gctx) })
	g.Go(func() error { return vm.FetchUserFavorites(gctx) })
	g.Go(func() error { return vm.FetchUserPurchases(gctx) })
	return g.Wait()
}

// SetSearchQuery applies text once typing has paused for the search delay.
func (vm *ViewModel) SetSearchQuery(text string) {
	vm.search.Trigger(func() {
		vm.update(func() { vm.query = text })
	})
}

func (vm *ViewModel) UpdateFilters(p FilterPatch) {
	vm.update(func() { vm.filters = vm.filters.Merge(p) })
}

// ToggleFavorite flips the favorite state of a playbook and returns the new
// state. Local state changes only after the remote call succeeds.
func (vm *ViewModel) ToggleFavorite(ctx context.Context, playbookID uuid.UUID) (bool, error) {
	if vm.userID == uuid.Nil {
		return false, apperr.Unauthenticated("sign in to favorite playbooks")
	}
	vm.mu.Lock()
	was := vm.favorites.Has(playbookID)
	vm.mu.Unlock()

	var err error
	if was {
		err = vm.backend.RemoveFavorite(ctx, vm.userID, playbookID)
	} else {
		err = vm.backend.AddFavorite(ctx, vm.userID, playbookID)
	}
	if err != nil {
		vm.log.Warn().Err(err).Str("playbook_id", playbookID.String()).Msg("toggle favorite failed")
		return was, err
	}

	vm.update(func() {
		next := vm.favorites.clone()
		if was {
			delete(next, playbookID)
		} else {
			next[playbookID] = struct{}{}
		}
		vm.favorites = next
	})
	return !was, nil
}

func (vm *ViewModel) Items() []Item {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return append([]Item{}, vm.items...)
}

// Page returns page n (1-based) of the derived listing.
func (vm *ViewModel) Page(n, size int) PageResult {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return Paginate(vm.items, n, size)
}

func (vm *ViewModel) Err() string {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.err
}

func (vm *ViewModel) Query() string {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.query
}

func (vm *ViewModel) Filters() Filters {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	f := vm.filters
	f.Tags = append([]string{}, f.Tags...)
	return f
}

func (vm *ViewModel) IsFavorite(id uuid.UUID) bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.favorites.Has(id)
}

func (vm *ViewModel) IsPurchased(id uuid.UUID) bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.purchases.Has(id)
}

// Subscribe registers fn to run after every recomputation. The returned
// func removes it.
func (vm *ViewModel) Subscribe(fn func()) func() {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	id := vm.nextSub
	vm.nextSub++
	vm.subs[id] = fn
	return func() {
		vm.mu.Lock()
		defer vm.mu.Unlock()
		delete(vm.subs, id)
	}
}

// Close cancels a pending search and drops subscribers.
func (vm *ViewModel) Close() {
	vm.search.Stop()
	vm.mu.Lock()
	vm.subs = map[int]func(){}
	vm.mu.Unlock()
}

// update mutates state, recomputes the derived listing and notifies
// subscribers outside the lock.
func (vm *ViewModel) update(mutate func()) {
	vm.mu.Lock()
	mutate()
	vm.items = Apply(vm.listing, vm.favorites, vm.purchases, vm.query, vm.filters)
	subs := make([]func(), 0, len(vm.subs))
	for _, fn := range vm.subs {
		subs = append(subs, fn)
	}
	vm.mu.Unlock()

	for _, fn := range subs {
		fn()
	}
}
