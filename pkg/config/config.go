// Package config loads the daemon configuration from an optional file and
// CONTENT_ prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-content-repository/cache"
	"github.com/goliatone/go-content-repository/filter"
	"github.com/goliatone/go-content-repository/pkg/database"
	"github.com/goliatone/go-content-repository/publish"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// EnvPrefix prefixes every environment override: cache.backend is read
// from CONTENT_CACHE_BACKEND.
const EnvPrefix = "CONTENT"

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Pagination PaginationConfig `mapstructure:"pagination"`
	Publish    PublishConfig    `mapstructure:"publish"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`
	DSN          string `mapstructure:"dsn"`
	Debug        bool   `mapstructure:"debug"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	// Migrate creates missing tables at startup.
	Migrate bool `mapstructure:"migrate"`
}

type CacheConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	Backend            string        `mapstructure:"backend"`
	TTL                time.Duration `mapstructure:"ttl"`
	Capacity           int           `mapstructure:"capacity"`
	Shards             int           `mapstructure:"shards"`
	EvictionPercentage int           `mapstructure:"eviction_percentage"`
	Redis              RedisConfig   `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type PaginationConfig struct {
	DefaultPerPage int   `mapstructure:"default_per_page"`
	AllowedPerPage []int `mapstructure:"allowed_per_page"`
}

type PublishConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Spec        string        `mapstructure:"spec"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseBackoff time.Duration `mapstructure:"base_backoff"`
	Expiry      time.Duration `mapstructure:"expiry"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("database.driver", database.DriverSQLite)
	v.SetDefault("database.dsn", "file:content.db?cache=shared&_foreign_keys=on")
	v.SetDefault("database.debug", false)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.migrate", true)

	c := cache.DefaultConfig()
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.backend", string(cache.BackendMemory))
	v.SetDefault("cache.ttl", c.TTL.String())
	v.SetDefault("cache.capacity", c.Capacity)
	v.SetDefault("cache.shards", c.NumShards)
	v.SetDefault("cache.eviction_percentage", c.EvictionPercentage)
	v.SetDefault("cache.redis.addr", c.Redis.Addr)
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.key_prefix", c.Redis.KeyPrefix)

	v.SetDefault("pagination.default_per_page", filter.DefaultPerPage)
	v.SetDefault("pagination.allowed_per_page", filter.AllowedPerPage)

	p := publish.DefaultSchedulerConfig()
	v.SetDefault("publish.enabled", true)
	v.SetDefault("publish.spec", p.Spec)
	v.SetDefault("publish.max_attempts", p.MaxAttempts)
	v.SetDefault("publish.base_backoff", p.BaseBackoff.String())
	v.SetDefault("publish.expiry", p.Expiry.String())

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load reads path (YAML, TOML, INI or JSON by extension) when it is not
// empty, then applies environment overrides on top.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case database.DriverSQLite, database.DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("database.driver must be %s or %s, got %q", database.DriverSQLite, database.DriverPostgres, c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn cannot be empty"))
	}

	if c.Cache.Enabled {
		if err := c.CacheConfig().Validate(); err != nil {
			errs = append(errs, fmt.Errorf("cache: %w", err))
		}
	}

	paging := c.Paging()
	if len(paging.Allowed) == 0 {
		errs = append(errs, errors.New("pagination.allowed_per_page cannot be empty"))
	} else if !paging.AllowsSize(paging.Default) {
		errs = append(errs, fmt.Errorf("pagination.default_per_page %d is not one of %v", paging.Default, paging.Allowed))
	}

	if c.Publish.Enabled {
		if err := c.SchedulerConfig().Validate(); err != nil {
			errs = append(errs, err)
		}
	}

	if _, err := zap.ParseAtomicLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func (c Config) DatabaseConfig() database.Config {
	return database.Config{
		Driver:       c.Database.Driver,
		DSN:          c.Database.DSN,
		Debug:        c.Database.Debug,
		MaxOpenConns: c.Database.MaxOpenConns,
	}
}

func (c Config) CacheConfig() cache.Config {
	cfg := cache.DefaultConfig()
	cfg.Enabled = c.Cache.Enabled
	cfg.Backend = cache.Backend(c.Cache.Backend)
	cfg.TTL = c.Cache.TTL
	cfg.Capacity = c.Cache.Capacity
	cfg.NumShards = c.Cache.Shards
	cfg.EvictionPercentage = c.Cache.EvictionPercentage
	cfg.Redis.Addr = c.Cache.Redis.Addr
	cfg.Redis.Password = c.Cache.Redis.Password
	cfg.Redis.DB = c.Cache.Redis.DB
	cfg.Redis.KeyPrefix = c.Cache.Redis.KeyPrefix
	return cfg
}

func (c Config) Paging() filter.Paging {
	return filter.Paging{
		Allowed: append([]int(nil), c.Pagination.AllowedPerPage...),
		Default: c.Pagination.DefaultPerPage,
	}
}

func (c Config) SchedulerConfig() publish.SchedulerConfig {
	return publish.SchedulerConfig{
		Spec:        c.Publish.Spec,
		MaxAttempts: c.Publish.MaxAttempts,
		BaseBackoff: c.Publish.BaseBackoff,
		Expiry:      c.Publish.Expiry,
	}
}

// Logger builds the zap logger: JSON at the configured level, or the
// console development encoder.
func (c LogConfig) Logger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(c.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	return zc.Build()
}
