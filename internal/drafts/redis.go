package drafts

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go-playbooks/internal/apperr"

	"github.com/redis/go-redis/v9"
)

const draftTTL = 30 * 24 * time.Hour

// RedisStore keeps each session's drafts in one hash, refreshed on write.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func key(session string) string { return "drafts:" + session }

func (s *RedisStore) List(ctx context.Context, session string) ([]Draft, error) {
	vals, err := s.rdb.HGetAll(ctx, key(session)).Result()
	if err != nil {
		return nil, apperr.Downstream("list temporary playbooks", err)
	}
	out := make([]Draft, 0, len(vals))
	for _, raw := range vals {
		var d Draft
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			return nil, apperr.Downstream("decode temporary playbook", err)
		}
		out = append(out, d)
	}
	sortDrafts(out)
	return out, nil
}

func (s *RedisStore) Get(ctx context.Context, session, id string) (*Draft, error) {
	raw, err := s.rdb.HGet(ctx, key(session), id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, apperr.NotFound("temporary playbook not found")
	}
	if err != nil {
		return nil, apperr.Downstream("get temporary playbook", err)
	}
	var d Draft
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, apperr.Downstream("decode temporary playbook", err)
	}
	return &d, nil
}

func (s *RedisStore) Put(ctx context.Context, session string, d Draft) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return apperr.Downstream("encode temporary playbook", err)
	}
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key(session), d.ID, raw)
	pipe.Expire(ctx, key(session), draftTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return apperr.Downstream("save temporary playbook", err)
	}
	return nil
}

// insertScript adds a field unless the hash already holds ARGV[3] fields.
var insertScript = redis.NewScript(`
if redis.call("HLEN", KEYS[1]) >= tonumber(ARGV[3]) then
  return 0
end
redis.call("HSET", KEYS[1], ARGV[1], ARGV[2])
redis.call("EXPIRE", KEYS[1], ARGV[4])
return 1
`)

func (s *RedisStore) Insert(ctx context.Context, session string, d Draft, limit int) (bool, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return false, apperr.Downstream("encode temporary playbook", err)
	}
	n, err := insertScript.Run(ctx, s.rdb, []string{key(session)}, d.ID, raw, limit, int(draftTTL.Seconds())).Int()
	if err != nil {
		return false, apperr.Downstream("save temporary playbook", err)
	}
	return n == 1, nil
}

func (s *RedisStore) Delete(ctx context.Context, session, id string) error {
	if err := s.rdb.HDel(ctx, key(session), id).Err(); err != nil {
		return apperr.Downstream("delete temporary playbook", err)
	}
	return nil
}
