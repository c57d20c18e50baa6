package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient 解析 URL 并检查连接
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// RedisStore 每个会话一个 hash，整体设置过期时间
type RedisStore struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
}

// NewRedisStore 创建会话存储
func NewRedisStore(client redis.Cmdable, sessionID string, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		key:    RedisKey(sessionID),
		ttl:    ttl,
	}
}

// RedisFactory 返回基于 redis 的 StoreFactory
func RedisFactory(client redis.Cmdable, ttl time.Duration) StoreFactory {
	return func(sessionID string) Store {
		return NewRedisStore(client, sessionID, ttl)
	}
}

// RedisKey 会话对应的 hash 键
func RedisKey(sessionID string) string {
	return "tripdash:session:" + sessionID
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.client.HGet(ctx, s.key, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis hget %s: %w", key, err)
	}
	return v, nil
}

func (s *RedisStore) SetMany(ctx context.Context, entries map[string][]byte) error {
	if len(entries) == 0 {
		return nil
	}
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.key, toValues(entries))
	s.expire(ctx, pipe)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Replace(ctx context.Context, entries map[string][]byte) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key)
	if len(entries) > 0 {
		pipe.HSet(ctx, s.key, toValues(entries))
		s.expire(ctx, pipe)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis replace: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("redis clear: %w", err)
	}
	return nil
}

func (s *RedisStore) expire(ctx context.Context, pipe redis.Pipeliner) {
	if s.ttl > 0 {
		pipe.Expire(ctx, s.key, s.ttl)
	}
}

func toValues(entries map[string][]byte) map[string]interface{} {
	values := make(map[string]interface{}, len(entries))
	for k, v := range entries {
		values[k] = v
	}
	return values
}
