package cache

import (
	"context"
	"time"

	"github.com/goliatone/go-content-repository/internal/cacheinfra"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Backend names a cache implementation.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendRedis  Backend = "redis"
)

// ConfigError reports an invalid cache configuration value.
type ConfigError = cacheinfra.ConfigError

// Config exposes cache configuration options for consumers of the cache package.
type Config struct {
	Enabled              bool
	Backend              Backend
	Capacity             int
	NumShards            int
	TTL                  time.Duration
	EvictionPercentage   int
	EarlyRefresh         *EarlyRefreshConfig
	MissingRecordStorage bool
	EvictionInterval     time.Duration
	Redis                RedisConfig
}

// EarlyRefreshConfig mirrors the underlying sturdyc early refresh options.
type EarlyRefreshConfig struct {
	MinAsyncRefreshTime time.Duration
	MaxAsyncRefreshTime time.Duration
	SyncRefreshTime     time.Duration
	RetryBaseDelay      time.Duration
}

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	KeyPrefix   string
	DialTimeout time.Duration
}

// DefaultConfig returns an enabled in-memory cache configuration.
func DefaultConfig() Config {
	cfg := convertFromInternal(cacheinfra.DefaultConfig())
	cfg.Enabled = true
	cfg.Backend = BackendMemory
	r := cacheinfra.DefaultRedisConfig()
	cfg.Redis = RedisConfig{
		Addr:        r.Addr,
		Password:    r.Password,
		DB:          r.DB,
		KeyPrefix:   r.KeyPrefix,
		DialTimeout: r.DialTimeout,
	}
	return cfg
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendMemory, "":
	case BackendRedis:
		if c.Redis.Addr == "" {
			return &cacheinfra.ConfigError{Field: "Redis.Addr", Message: "cannot be empty"}
		}
	default:
		return &cacheinfra.ConfigError{Field: "Backend", Message: "must be memory or redis"}
	}
	return c.toInternal().Validate()
}

// NewCacheService constructs the in-memory sturdyc cache service.
func NewCacheService(cfg Config) (CacheService, error) {
	svc, err := cacheinfra.NewSturdycService(cfg.toInternal())
	if err != nil {
		return nil, err
	}
	return svc, nil
}

// NewRedisCacheService constructs a Redis cache service around client.
func NewRedisCacheService(client redis.UniversalClient, cfg Config, logger *zap.Logger) (CacheService, error) {
	svc, err := cacheinfra.NewRedisService(client, cfg.toInternalRedis(), cfg.TTL, logger)
	if err != nil {
		return nil, err
	}
	return svc, nil
}

// NewCacheServiceWithFallback builds the backend named by cfg. When Redis is
// selected but does not answer a ping, it logs a warning and returns the
// in-memory service instead.
func NewCacheServiceWithFallback(ctx context.Context, cfg Config, logger *zap.Logger) (CacheService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Backend != BackendRedis {
		return NewCacheService(cfg)
	}

	client := redis.NewClient(cfg.toInternalRedis().Options())
	pingCtx, cancel := context.WithTimeout(ctx, cfg.Redis.DialTimeout+time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unavailable, using in-memory cache",
			zap.String("addr", cfg.Redis.Addr),
			zap.Error(err),
		)
		_ = client.Close()
		return NewCacheService(cfg)
	}

	logger.Info("using redis cache", zap.String("addr", cfg.Redis.Addr))
	return NewRedisCacheService(client, cfg, logger)
}

func (c Config) toInternal() cacheinfra.Config {
	var early *cacheinfra.EarlyRefreshConfig
	if c.EarlyRefresh != nil {
		early = &cacheinfra.EarlyRefreshConfig{
			MinAsyncRefreshTime: c.EarlyRefresh.MinAsyncRefreshTime,
			MaxAsyncRefreshTime: c.EarlyRefresh.MaxAsyncRefreshTime,
			SyncRefreshTime:     c.EarlyRefresh.SyncRefreshTime,
			RetryBaseDelay:      c.EarlyRefresh.RetryBaseDelay,
		}
	}

	return cacheinfra.Config{
		Capacity:             c.Capacity,
		NumShards:            c.NumShards,
		TTL:                  c.TTL,
		EvictionPercentage:   c.EvictionPercentage,
		EarlyRefresh:         early,
		MissingRecordStorage: c.MissingRecordStorage,
		EvictionInterval:     c.EvictionInterval,
	}
}

func (c Config) toInternalRedis() cacheinfra.RedisConfig {
	return cacheinfra.RedisConfig{
		Addr:        c.Redis.Addr,
		Password:    c.Redis.Password,
		DB:          c.Redis.DB,
		KeyPrefix:   c.Redis.KeyPrefix,
		DialTimeout: c.Redis.DialTimeout,
	}
}

func convertFromInternal(cfg cacheinfra.Config) Config {
	var early *EarlyRefreshConfig
	if cfg.EarlyRefresh != nil {
		early = &EarlyRefreshConfig{
			MinAsyncRefreshTime: cfg.EarlyRefresh.MinAsyncRefreshTime,
			MaxAsyncRefreshTime: cfg.EarlyRefresh.MaxAsyncRefreshTime,
			SyncRefreshTime:     cfg.EarlyRefresh.SyncRefreshTime,
			RetryBaseDelay:      cfg.EarlyRefresh.RetryBaseDelay,
		}
	}

	return Config{
		Capacity:             cfg.Capacity,
		NumShards:            cfg.NumShards,
		TTL:                  cfg.TTL,
		EvictionPercentage:   cfg.EvictionPercentage,
		EarlyRefresh:         early,
		MissingRecordStorage: cfg.MissingRecordStorage,
		EvictionInterval:     cfg.EvictionInterval,
	}
}
