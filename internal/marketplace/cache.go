package marketplace

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go-playbooks/internal/apperr"
	"go-playbooks/internal/playbook"

	"github.com/redis/go-redis/v9"
)

const (
	listingKey             = "marketplace:listing"
	DefaultListingCacheTTL = 30 * time.Second
)

// ListingCache stores the serialized marketplace listing. Get reports a
// miss with ok=false and a nil error.
type ListingCache interface {
	Get(ctx context.Context) (list []*playbook.Playbook, ok bool, err error)
	Set(ctx context.Context, list []*playbook.Playbook) error
	Invalidate(ctx context.Context) error
}

type RedisListingCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisListingCache(rdb *redis.Client, ttl time.Duration) *RedisListingCache {
	if ttl <= 0 {
		ttl = DefaultListingCacheTTL
	}
	return &RedisListingCache{rdb: rdb, ttl: ttl}
}

func (c *RedisListingCache) Get(ctx context.Context) ([]*playbook.Playbook, bool, error) {
	raw, err := c.rdb.Get(ctx, listingKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperr.Downstream("read listing cache", err)
	}
	var list []*playbook.Playbook
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, false, apperr.Downstream("decode listing cache", err)
	}
	return list, true, nil
}

func (c *RedisListingCache) Set(ctx context.Context, list []*playbook.Playbook) error {
	raw, err := json.Marshal(list)
	if err != nil {
		return apperr.Downstream("encode listing cache", err)
	}
	if err := c.rdb.Set(ctx, listingKey, raw, c.ttl).Err(); err != nil {
		return apperr.Downstream("write listing cache", err)
	}
	return nil
}

func (c *RedisListingCache) Invalidate(ctx context.Context) error {
	if err := c.rdb.Del(ctx, listingKey).Err(); err != nil {
		return apperr.Downstream("invalidate listing cache", err)
	}
	return nil
}
