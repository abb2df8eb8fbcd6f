package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps entries in Redis with a TTL matching their freshness
// window. Keys are namespaced per process (see NewNamespace).
type RedisStore struct {
	redis     *redis.Client
	namespace string
}

// NewRedisStore creates a Redis backed store. An empty namespace selects a
// fresh random one.
func NewRedisStore(redisClient *redis.Client, namespace string) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if namespace == "" {
		namespace = NewNamespace()
	}
	return &RedisStore{
		redis:     redisClient,
		namespace: namespace,
	}
}

// Namespace returns the key namespace of the store.
func (s *RedisStore) Namespace() string {
	return s.namespace
}

// Get implements Store. The read and the purge of an expired entry run in
// one WATCH transaction so a concurrent Set is never deleted by mistake.
func (s *RedisStore) Get(ctx context.Context, key string, now time.Time) (*Entry, error) {
	redisKey := RedisKey(s.namespace, key)

	var entry *Entry
	err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, redisKey).Bytes()
		if err != nil {
			if err == redis.Nil {
				return ErrCacheMiss
			}
			return fmt.Errorf("redis get: %w", err)
		}

		var stored Entry
		if err := json.Unmarshal(data, &stored); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidEntry, err)
		}

		if stored.IsExpired(now) {
			_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, redisKey)
				return nil
			})
			if err != nil && !errors.Is(err, redis.TxFailedErr) {
				return fmt.Errorf("redis del: %w", err)
			}
			CacheExpired.Inc()
			return ErrCacheMiss
		}

		entry = &stored
		return nil
	}, redisKey)

	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			CacheErrors.WithLabelValues("get").Inc()
		}
		return nil, err
	}
	return entry, nil
}

// Set implements Store. Entries with an empty freshness window are not
// written.
func (s *RedisStore) Set(ctx context.Context, key string, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	ttl := entry.Lifetime()
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := s.redis.Set(ctx, RedisKey(s.namespace, key), data, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.redis.Del(ctx, RedisKey(s.namespace, key)).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Layer implements Store.
func (s *RedisStore) Layer() string {
	return "redis"
}
