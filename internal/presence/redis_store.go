package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"

	"github.com/redis/go-redis/v9"

	"staffpresence/internal/apperr"
)

const scanBatch = 100

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisStore keeps one JSON posting per identifier plus an index set used
// to enumerate them. Writes run under WATCH/MULTI on the posting key.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a store using keys under prefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "staffpresence"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) postingKey(identifier string) string {
	return fmt.Sprintf("%s:posting:%s", s.prefix, identifier)
}

func (s *RedisStore) indexKey() string {
	return s.prefix + ":posting:index"
}

func (s *RedisStore) Update(ctx context.Context, identifier string, decide func(cur Posting, found bool) (Posting, bool)) (Posting, error) {
	pk := s.postingKey(identifier)
	var out Posting

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := s.load(ctx, tx, pk)
		found := true
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			found = false
		case err != nil:
			return err
		}

		next, write := decide(cur, found)
		if !write {
			out = next
			return nil
		}
		payload, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode posting: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, pk, payload, 0)
			pipe.SAdd(ctx, s.indexKey(), identifier)
			return nil
		})
		if err != nil {
			return err
		}
		out = next
		return nil
	}, pk)

	if errors.Is(err, redis.TxFailedErr) {
		return Posting{}, apperr.Conflict(err)
	}
	if err != nil {
		return Posting{}, apperr.Unavailable(err)
	}
	return out, nil
}

func (s *RedisStore) Get(ctx context.Context, identifier string) (Posting, error) {
	p, err := s.load(ctx, s.client, s.postingKey(identifier))
	if err != nil {
		return Posting{}, apperr.Unavailable(err)
	}
	return p, nil
}

// Scan pages through the index with SSCAN and fetches each page with MGET,
// so only one page is held in memory at a time. SSCAN may return a member
// more than once per pass; repeats are dropped.
func (s *RedisStore) Scan(ctx context.Context) iter.Seq2[Posting, error] {
	return func(yield func(Posting, error) bool) {
		var cursor uint64
		seen := make(map[string]struct{})
		for {
			page, next, err := s.client.SScan(ctx, s.indexKey(), cursor, "", scanBatch).Result()
			if err != nil {
				yield(Posting{}, apperr.Unavailable(err))
				return
			}
			ids := unseen(page, seen)
			if len(ids) > 0 {
				keys := make([]string, len(ids))
				for i, id := range ids {
					keys[i] = s.postingKey(id)
				}
				vals, err := s.client.MGet(ctx, keys...).Result()
				if err != nil {
					yield(Posting{}, apperr.Unavailable(err))
					return
				}
				for _, v := range vals {
					raw, ok := v.(string)
					if !ok {
						continue
					}
					var p Posting
					if err := json.Unmarshal([]byte(raw), &p); err != nil {
						yield(Posting{}, apperr.Unavailable(fmt.Errorf("decode posting: %w", err)))
						return
					}
					if !yield(p, nil) {
						return
					}
				}
			}
			if next == 0 {
				return
			}
			cursor = next
		}
	}
}

// unseen returns the ids not yet in seen and records them.
func unseen(ids []string, seen map[string]struct{}) []string {
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func (s *RedisStore) load(ctx context.Context, c getter, pk string) (Posting, error) {
	raw, err := c.Get(ctx, pk).Bytes()
	if errors.Is(err, redis.Nil) {
		return Posting{}, apperr.ErrNotFound
	}
	if err != nil {
		return Posting{}, err
	}
	var p Posting
	if err := json.Unmarshal(raw, &p); err != nil {
		return Posting{}, fmt.Errorf("decode posting: %w", err)
	}
	return p, nil
}
