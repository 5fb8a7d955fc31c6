// Package marketplace lists published playbooks and tracks favorites,
// purchases and ratings. ViewModel is the in-memory projection a client
// session keeps; Service and Handler are the server side.
package marketplace

import (
	"context"
	"time"

	"go-playbooks/internal/apperr"
	"go-playbooks/internal/playbook"
	"go-playbooks/internal/shortid"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Store interface {
	ListMarketplace(ctx context.Context) ([]*playbook.Playbook, error)
	FavoriteIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	PurchaseIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	IsFavorite(ctx context.Context, userID, playbookID uuid.UUID) (bool, error)
	AddFavorite(ctx context.Context, userID, playbookID uuid.UUID) error
	RemoveFavorite(ctx context.Context, userID, playbookID uuid.UUID) error
	AddPurchase(ctx context.Context, userID, playbookID uuid.UUID) (bool, error)
	Rate(ctx context.Context, userID, playbookID uuid.UUID, score int) (float64, int, error)
	Stats(ctx context.Context) (Stats, error)
	Ping(ctx context.Context) (time.Duration, error)
}

type Playbooks interface {
	Lookup(ctx context.Context, id uuid.UUID) (*playbook.Playbook, error)
	Update(ctx context.Context, userID, id uuid.UUID, in playbook.UpdateInput) (*playbook.Playbook, error)
}

type Stats struct {
	MarketplacePlaybooks int `json:"marketplace_playbooks"`
	Favorites            int `json:"favorites"`
	Purchases            int `json:"purchases"`
}

type Diagnostics struct {
	Stats
	DBLatencyMS  float64 `json:"db_latency_ms"`
	CacheEnabled bool    `json:"cache_enabled"`
}

type PublishInput struct {
	IsMarketplace bool     `json:"is_marketplace"`
	Price         *float64 `json:"price" validate:"omitempty,gte=0"`
}

type RatingInput struct {
	Score int `json:"score" validate:"required,min=1,max=5"`
}

type Rating struct {
	PlaybookID uuid.UUID `json:"playbook_id"`
	Score      int       `json:"score"`
	Average    float64   `json:"rating"`
	Count      int       `json:"rating_count"`
}

type Service struct {
	store     Store
	playbooks Playbooks
	cache     ListingCache
	log       zerolog.Logger
}

// NewService wires the marketplace. cache may be nil.
func NewService(store Store, playbooks Playbooks, cache ListingCache, log zerolog.Logger) *Service {
	return &Service{store: store, playbooks: playbooks, cache: cache, log: log}
}

// Listing returns all marketplace playbooks, served from the cache when
// possible. Cache failures fall through to the store.
func (s *Service) Listing(ctx context.Context) ([]*playbook.Playbook, error) {
	if s.cache != nil {
		list, ok, err := s.cache.Get(ctx)
		if err != nil {
			s.log.Warn().Err(err).Msg("listing cache read failed")
		}
		if ok {
			return list, nil
		}
	}
	list, err := s.store.ListMarketplace(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("list marketplace failed")
		return nil, err
	}
	for _, p := range list {
		p.ShortID = shortid.ToShortID(p.ID)
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, list); err != nil {
			s.log.Warn().Err(err).Msg("listing cache write failed")
		}
	}
	return list, nil
}

func (s *Service) FavoriteIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	if userID == uuid.Nil {
		return []uuid.UUID{}, nil
	}
	return s.store.FavoriteIDs(ctx, userID)
}

func (s *Service) PurchaseIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	if userID == uuid.Nil {
		return []uuid.UUID{}, nil
	}
	return s.store.PurchaseIDs(ctx, userID)
}

func (s *Service) AddFavorite(ctx context.Context, userID, playbookID uuid.UUID) error {
	if err := s.listed(ctx, userID, playbookID); err != nil {
		return err
	}
	return s.store.AddFavorite(ctx, userID, playbookID)
}

func (s *Service) RemoveFavorite(ctx context.Context, userID, playbookID uuid.UUID) error {
	if userID == uuid.Nil {
		return apperr.Unauthenticated("authentication required")
	}
	return s.store.RemoveFavorite(ctx, userID, playbookID)
}

// ToggleFavorite checks membership then inserts or deletes. It returns the
// new state.
func (s *Service) ToggleFavorite(ctx context.Context, userID, playbookID uuid.UUID) (bool, error) {
	if userID == uuid.Nil {
		return false, apperr.Unauthenticated("authentication required")
	}
	fav, err := s.store.IsFavorite(ctx, userID, playbookID)
	if err != nil {
		return false, err
	}
	if fav {
		return false, s.RemoveFavorite(ctx, userID, playbookID)
	}
	return true, s.AddFavorite(ctx, userID, playbookID)
}

// Purchase records that the user bought a listed playbook. Repeated calls
// are no-ops. No payment is taken.
func (s *Service) Purchase(ctx context.Context, userID, playbookID uuid.UUID) (bool, error) {
	if err := s.listed(ctx, userID, playbookID); err != nil {
		return false, err
	}
	inserted, err := s.store.AddPurchase(ctx, userID, playbookID)
	if err != nil {
		s.log.Error().Err(err).Str("playbook_id", playbookID.String()).Msg("record purchase failed")
		return false, err
	}
	if inserted {
		s.invalidate(ctx)
		s.log.Info().Str("playbook_id", playbookID.String()).Str("user_id", userID.String()).Msg("purchase recorded")
	}
	return inserted, nil
}

// Publish lists or unlists a playbook. The playbook service enforces that
// only the owner may change these fields.
func (s *Service) Publish(ctx context.Context, userID, playbookID uuid.UUID, in PublishInput) (*playbook.Playbook, error) {
	if in.Price != nil && *in.Price < 0 {
		return nil, apperr.Validation("price must not be negative")
	}
	listed := in.IsMarketplace
	p, err := s.playbooks.Update(ctx, userID, playbookID, playbook.UpdateInput{IsMarketplace: &listed, Price: in.Price})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	s.log.Info().Str("playbook_id", playbookID.String()).Bool("listed", listed).Msg("marketplace listing changed")
	return p, nil
}

// Rate stores a 1-5 score for a listed playbook the user does not own.
func (s *Service) Rate(ctx context.Context, userID, playbookID uuid.UUID, score int) (*Rating, error) {
	if score < 1 || score > 5 {
		return nil, apperr.Validation("score must be between 1 and 5")
	}
	if err := s.listed(ctx, userID, playbookID); err != nil {
		return nil, err
	}
	p, err := s.playbooks.Lookup(ctx, playbookID)
	if err != nil {
		return nil, err
	}
	if p.OwnerID == userID {
		return nil, apperr.Forbidden("you cannot rate your own playbook")
	}
	avg, count, err := s.store.Rate(ctx, userID, playbookID, score)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return &Rating{PlaybookID: playbookID, Score: score, Average: avg, Count: count}, nil
}

func (s *Service) Diagnostics(ctx context.Context) (*Diagnostics, error) {
	latency, err := s.store.Ping(ctx)
	if err != nil {
		return nil, err
	}
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return &Diagnostics{
		Stats:        stats,
		DBLatencyMS:  float64(latency.Microseconds()) / 1000,
		CacheEnabled: s.cache != nil,
	}, nil
}

// listed fails unless the caller is signed in and the playbook is in the
// marketplace.
func (s *Service) listed(ctx context.Context, userID, playbookID uuid.UUID) error {
	if userID == uuid.Nil {
		return apperr.Unauthenticated("authentication required")
	}
	p, err := s.playbooks.Lookup(ctx, playbookID)
	if err != nil {
		return err
	}
	if !p.IsMarketplace {
		return apperr.NotFound("playbook is not in the marketplace")
	}
	return nil
}

// PlaybookChanged drops the cached listing after a playbook it may contain
// was edited or deleted.
func (s *Service) PlaybookChanged(ctx context.Context, id uuid.UUID) {
	s.log.Debug().Str("playbook_id", id.String()).Msg("playbook changed, dropping listing cache")
	s.invalidate(ctx)
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.log.Warn().Err(err).Msg("listing cache invalidation failed")
	}
}
