package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps one hash per browser and refreshes its TTL on every write.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedis(rdb redis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: "eventclient:session:", ttl: ttl}
}

func (s *RedisStore) key(browserID string) string { return s.prefix + browserID }

func (s *RedisStore) Get(ctx context.Context, browserID, key string) (string, error) {
	v, err := s.rdb.HGet(ctx, s.key(browserID), key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

func (s *RedisStore) GetAll(ctx context.Context, browserID string) (map[string]string, error) {
	return s.rdb.HGetAll(ctx, s.key(browserID)).Result()
}

func (s *RedisStore) SetMany(ctx context.Context, browserID string, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	k := s.key(browserID)
	fields := make([]any, 0, len(values)*2)
	for field, v := range values {
		fields = append(fields, field, v)
	}
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, k, fields...)
		if s.ttl > 0 {
			p.Expire(ctx, k, s.ttl)
		}
		return nil
	})
	return err
}

func (s *RedisStore) Clear(ctx context.Context, browserID string) error {
	return s.rdb.Del(ctx, s.key(browserID)).Err()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
