package marketplace

import (
	"context"
	"time"

	"go-playbooks/internal/gateway"
	"go-playbooks/internal/playbook"

	"github.com/google/uuid"
)

type Repository struct {
	gw *gateway.Gateway
}

func NewRepository(gw *gateway.Gateway) *Repository {
	return &Repository{gw: gw}
}

// ListMarketplace returns every listed playbook, newest first.
func (r *Repository) ListMarketplace(ctx context.Context) ([]*playbook.Playbook, error) {
	rows, err := r.gw.From("playbooks", playbook.Columns...).
		Eq("is_marketplace", true).
		Order("created_at", false).
		Rows(ctx)
	if err != nil {
		return nil, gateway.Wrap(err, "playbook")
	}
	list, err := playbook.ScanRows(rows)
	return list, gateway.Wrap(err, "playbook")
}

func (r *Repository) FavoriteIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	return r.ids(ctx, "favorites", userID)
}

func (r *Repository) PurchaseIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	return r.ids(ctx, "purchases", userID)
}

func (r *Repository) IsFavorite(ctx context.Context, userID, playbookID uuid.UUID) (bool, error) {
	ok, err := r.gw.Exists(ctx, "favorites", gateway.Eq{"user_id": userID, "playbook_id": playbookID})
	return ok, gateway.Wrap(err, "favorite")
}

func (r *Repository) AddFavorite(ctx context.Context, userID, playbookID uuid.UUID) error {
	_, err := r.gw.Upsert(ctx, "favorites",
		map[string]any{"user_id": userID, "playbook_id": playbookID},
		[]string{"user_id", "playbook_id"})
	return gateway.Wrap(err, "favorite")
}

func (r *Repository) RemoveFavorite(ctx context.Context, userID, playbookID uuid.UUID) error {
	_, err := r.gw.Delete(ctx, "favorites", gateway.Eq{"user_id": userID, "playbook_id": playbookID})
	return gateway.Wrap(err, "favorite")
}

// AddPurchase records the purchase once and bumps the playbook's purchase
// count only when a row was inserted.
func (r *Repository) AddPurchase(ctx context.Context, userID, playbookID uuid.UUID) (bool, error) {
	inserted := false
	err := r.gw.WithTx(ctx, func(tx *gateway.Gateway) error {
		n, err := tx.Upsert(ctx, "purchases",
			map[string]any{"user_id": userID, "playbook_id": playbookID},
			[]string{"user_id", "playbook_id"})
		if err != nil {
			return gateway.Wrap(err, "purchase")
		}
		if n == 0 {
			return nil
		}
		inserted = true
		_, err = tx.Update(ctx, "playbooks",
			map[string]any{"purchase_count": gateway.Expr("purchase_count + 1")},
			gateway.Eq{"id": playbookID})
		return gateway.Wrap(err, "playbook")
	})
	return inserted, err
}

// Rate stores the user's score and recomputes the playbook's average and
// count from all ratings.
func (r *Repository) Rate(ctx context.Context, userID, playbookID uuid.UUID, score int) (avg float64, count int, err error) {
	err = r.gw.WithTx(ctx, func(tx *gateway.Gateway) error {
		_, err := tx.Upsert(ctx, "ratings",
			map[string]any{"user_id": userID, "playbook_id": playbookID, "rating": score},
			[]string{"user_id", "playbook_id"}, "rating")
		if err != nil {
			return gateway.Wrap(err, "rating")
		}
		id := playbookID.String()
		_, err = tx.Update(ctx, "playbooks", map[string]any{
			"rating":       gateway.Expr("(SELECT COALESCE(AVG(rating), 0) FROM ratings WHERE playbook_id = ?)", id),
			"rating_count": gateway.Expr("(SELECT COUNT(*) FROM ratings WHERE playbook_id = ?)", id),
		}, gateway.Eq{"id": playbookID})
		if err != nil {
			return gateway.Wrap(err, "playbook")
		}
		err = tx.From("playbooks", "rating", "rating_count").Eq("id", playbookID).Row(ctx).Scan(&avg, &count)
		return gateway.Wrap(err, "playbook")
	})
	return avg, count, err
}

func (r *Repository) Stats(ctx context.Context) (Stats, error) {
	var (
		s   Stats
		err error
	)
	if s.MarketplacePlaybooks, err = r.gw.From("playbooks").Eq("is_marketplace", true).Count(ctx); err != nil {
		return s, gateway.Wrap(err, "playbook")
	}
	if s.Favorites, err = r.gw.From("favorites").Count(ctx); err != nil {
		return s, gateway.Wrap(err, "favorite")
	}
	if s.Purchases, err = r.gw.From("purchases").Count(ctx); err != nil {
		return s, gateway.Wrap(err, "purchase")
	}
	return s, nil
}

// Ping measures a round trip to the database.
func (r *Repository) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := r.gw.DB().PingContext(ctx); err != nil {
		return 0, gateway.Wrap(err, "database")
	}
	return time.Since(start), nil
}

func (r *Repository) ids(ctx context.Context, table string, userID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.gw.From(table, "playbook_id").Eq("user_id", userID).Rows(ctx)
	if err != nil {
		return nil, gateway.Wrap(err, table)
	}
	defer rows.Close()
	out := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, gateway.Wrap(err, table)
		}
		out = append(out, id)
	}
	return out, gateway.Wrap(rows.Err(), table)
}
