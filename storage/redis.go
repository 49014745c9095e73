package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a [Store] backed by a Redis hash-less flat keyspace. It serves
// as the persistent scope for headless deployments (daemons, CLI agents) where
// credentials must survive process restarts or be shared across workers.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration // 0 = no expiry
}

// NewRedisStore creates a Redis-backed store. All keys are namespaced under
// prefix; ttl applies per key on every Set (0 disables expiry).
func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "lc"
	}
	return &RedisStore{
		redis:  client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *RedisStore) key(key string) string {
	return s.prefix + ":" + key
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	value, err := s.redis.Get(ctx, s.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", err
	}
	return value, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	return s.redis.Set(ctx, s.key(key), value, s.ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.redis.Del(ctx, s.key(key)).Err()
}

func (s *RedisStore) Keys(ctx context.Context) ([]string, error) {
	raw, err := s.redis.Keys(ctx, s.prefix+":*").Result()
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		keys = append(keys, strings.TrimPrefix(k, s.prefix+":"))
	}
	return keys, nil
}
