package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"staffpresence/internal/apperr"
)

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisStore keeps each record as a JSON document and guards writes with
// WATCH/MULTI, so a concurrent writer on the same key turns into a conflict
// the caller retries.
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

func (s *RedisStore) recordKey(key Key) string {
	return fmt.Sprintf("%s:dtr:%s:%s", s.prefix, key.Date, key.Identifier)
}

func (s *RedisStore) indexKey(date string) string {
	return fmt.Sprintf("%s:dtr:index:%s", s.prefix, date)
}

func (s *RedisStore) Update(ctx context.Context, key Key, mutate func(rec *Record) bool) (Record, error) {
	rk := s.recordKey(key)
	var out Record

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		rec, err := s.load(ctx, tx, rk)
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			rec = Record{Identifier: key.Identifier, Date: key.Date}
		case err != nil:
			return err
		}

		if !mutate(&rec) {
			out = rec
			return nil
		}
		payload, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode record: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, rk, payload, 0)
			pipe.SAdd(ctx, s.indexKey(key.Date), key.Identifier)
			return nil
		})
		if err != nil {
			return err
		}
		out = rec
		return nil
	}, rk)

	if errors.Is(err, redis.TxFailedErr) {
		return Record{}, apperr.Conflict(err)
	}
	if err != nil {
		return Record{}, apperr.Unavailable(err)
	}
	return out, nil
}

func (s *RedisStore) Get(ctx context.Context, key Key) (Record, error) {
	rec, err := s.load(ctx, s.client, s.recordKey(key))
	if err != nil {
		return Record{}, apperr.Unavailable(err)
	}
	return rec, nil
}

func (s *RedisStore) ListByDate(ctx context.Context, date string) ([]Record, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey(date)).Result()
	if err != nil {
		return nil, apperr.Unavailable(err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	sort.Strings(ids)

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.recordKey(Key{Identifier: id, Date: date})
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, apperr.Unavailable(err)
	}

	out := make([]Record, 0, len(vals))
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, apperr.Unavailable(fmt.Errorf("decode record: %w", err))
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *RedisStore) load(ctx context.Context, c getter, rk string) (Record, error) {
	raw, err := c.Get(ctx, rk).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, apperr.ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}
