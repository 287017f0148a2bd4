package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lqx/pool-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for history queries. Appends go to the primary store and
// invalidate the cache; reads check Redis first then fall back.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary journal.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

func (s *CachedStore) AppendEvent(ctx context.Context, event *model.Event) error {
	if err := s.primary.AppendEvent(ctx, event); err != nil {
		return err
	}
	// Invalidate cached history; next read re-populates.
	keys, err := s.rdb.Keys(ctx, "events:*").Result()
	if err == nil && len(keys) > 0 {
		s.rdb.Del(ctx, keys...)
	}
	return nil
}

func (s *CachedStore) RecentEvents(ctx context.Context, limit int) ([]model.Event, error) {
	key := recentKey(limit)

	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var events []model.Event
		if json.Unmarshal(data, &events) == nil {
			return events, nil
		}
	}

	events, err := s.primary.RecentEvents(ctx, limit)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(events); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
	return events, nil
}

func (s *CachedStore) EventsByKind(ctx context.Context, kind string) ([]model.Event, error) {
	key := kindKey(kind)

	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var events []model.Event
		if json.Unmarshal(data, &events) == nil {
			return events, nil
		}
	}

	events, err := s.primary.EventsByKind(ctx, kind)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(events); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
	return events, nil
}

func recentKey(limit int) string { return fmt.Sprintf("events:recent:%d", limit) }
func kindKey(kind string) string { return fmt.Sprintf("events:kind:%s", kind) }
