package queue

import (
	"context"
	"errors"

	redis "github.com/redis/go-redis/v9"
)

// RedisStore implements Store over Redis lists and string keys.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisClient parses a redis:// URL and returns a connected client.
func NewRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil { return nil, err }
	return redis.NewClient(opt), nil
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) PushBack(ctx context.Context, list string, item []byte) error {
	return s.rdb.RPush(ctx, list, item).Err()
}

func (s *RedisStore) PopFront(ctx context.Context, list string) ([]byte, error) {
	b, err := s.rdb.LPop(ctx, list).Bytes()
	if errors.Is(err, redis.Nil) { return nil, ErrEmpty }
	return b, err
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) { return "", ErrNotFound }
	return v, err
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	return s.rdb.Set(ctx, key, value, 0).Err()
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 { return nil }
	return s.rdb.Del(ctx, keys...).Err()
}

func (s *RedisStore) Length(ctx context.Context, list string) (int64, error) {
	return s.rdb.LLen(ctx, list).Result()
}

func (s *RedisStore) Range(ctx context.Context, list string, start, stop int64) ([][]byte, error) {
	vals, err := s.rdb.LRange(ctx, list, start, stop).Result()
	if err != nil { return nil, err }
	out := make([][]byte, 0, len(vals))
	for _, v := range vals { out = append(out, []byte(v)) }
	return out, nil
}

func (s *RedisStore) Remove(ctx context.Context, list string, item []byte) (int64, error) {
	return s.rdb.LRem(ctx, list, 1, item).Result()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
