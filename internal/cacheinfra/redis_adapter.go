package cacheinfra

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisConfig configures the Redis backed cache service.
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	KeyPrefix   string
	DialTimeout time.Duration
}

// DefaultRedisConfig returns a local Redis configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:        "127.0.0.1:6379",
		KeyPrefix:   "content:",
		DialTimeout: 2 * time.Second,
	}
}

// Options builds the go-redis client options for the config.
func (c RedisConfig) Options() *redis.Options {
	return &redis.Options{
		Addr:        c.Addr,
		Password:    c.Password,
		DB:          c.DB,
		DialTimeout: c.DialTimeout,
	}
}

const tagKeyPrefix = "tag:"

// redisService stores msgpack encoded values in Redis and keeps one set
// per tag listing the keys written under it. Redis failures never reach
// the caller of GetOrFetch: reads fall through to fetchFn and writes are
// dropped with a log line.
type redisService struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
	logger *zap.Logger
}

// NewRedisService wraps an existing client. ttl applies to every entry.
func NewRedisService(client redis.UniversalClient, cfg RedisConfig, ttl time.Duration, logger *zap.Logger) (*redisService, error) {
	if client == nil {
		return nil, &ConfigError{Field: "client", Message: "cannot be nil"}
	}
	if ttl <= 0 {
		return nil, &ConfigError{Field: "TTL", Message: "must be greater than 0"}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &redisService{
		client: client,
		ttl:    ttl,
		prefix: cfg.KeyPrefix,
		logger: logger,
	}, nil
}

func (s *redisService) GetOrFetch(ctx context.Context, key string, fetchFn any) (any, error) {
	if err := validateFetchFn(fetchFn); err != nil {
		return nil, err
	}

	fullKey := s.prefix + key
	outType := reflect.TypeOf(fetchFn).Out(0)

	data, err := s.client.Get(ctx, fullKey).Bytes()
	switch {
	case err == nil:
		value, derr := decodeValue(data, outType)
		if derr == nil {
			return value, nil
		}
		s.logger.Warn("cache entry decode failed",
			zap.String("key", fullKey),
			zap.Error(derr),
		)
	case errors.Is(err, redis.Nil):
	default:
		s.logger.Warn("cache read failed, falling back to source",
			zap.String("key", fullKey),
			zap.Error(err),
		)
	}

	value, err := callFetchFunctionWithReflection(ctx, fetchFn)
	if err != nil {
		return value, err
	}

	s.store(ctx, fullKey, value, TagsFromContext(ctx))
	return value, nil
}

func (s *redisService) store(ctx context.Context, fullKey string, value any, tags []string) {
	data, err := encodeValue(value)
	if err != nil {
		s.logger.Warn("cache entry encode failed", zap.String("key", fullKey), zap.Error(err))
		return
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, fullKey, data, s.ttl)
	for _, tag := range tags {
		tk := s.tagKey(tag)
		pipe.SAdd(ctx, tk, fullKey)
		pipe.Expire(ctx, tk, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Warn("cache write failed", zap.String("key", fullKey), zap.Error(err))
	}
}

func (s *redisService) tagKey(tag string) string {
	return s.prefix + tagKeyPrefix + tag
}

func (s *redisService) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}

// InvalidateTags deletes the keys recorded in each tag set and the set itself.
func (s *redisService) InvalidateTags(ctx context.Context, tags ...string) error {
	for _, tag := range tags {
		tk := s.tagKey(tag)
		keys, err := s.client.SMembers(ctx, tk).Result()
		if err != nil {
			return fmt.Errorf("redis cache: read tag %q: %w", tag, err)
		}
		keys = append(keys, tk)
		if err := s.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("redis cache: invalidate tag %q: %w", tag, err)
		}
	}
	return nil
}

// DeleteByPrefix scans for keys starting with prefix and deletes them.
func (s *redisService) DeleteByPrefix(ctx context.Context, prefix string) error {
	var cursor uint64
	match := s.prefix + prefix + "*"
	for {
		keys, next, err := s.client.Scan(ctx, cursor, match, 100).Result()
		if err != nil {
			return fmt.Errorf("redis cache: scan %q: %w", match, err)
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis cache: delete by prefix %q: %w", prefix, err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// Ping reports whether the Redis server answers.
func (s *redisService) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
