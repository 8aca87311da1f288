package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goliatone/go-content-repository/cache"
	"github.com/goliatone/go-content-repository/filter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, cache.BackendMemory, cfg.CacheConfig().Backend)
	assert.Equal(t, cache.DefaultConfig().TTL, cfg.Cache.TTL)
	assert.Equal(t, filter.DefaultPaging(), cfg.Paging())
	assert.Equal(t, 3, cfg.SchedulerConfig().MaxAttempts)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CONTENT_CACHE_BACKEND", "redis")
	t.Setenv("CONTENT_CACHE_REDIS_ADDR", "cache:6379")
	t.Setenv("CONTENT_CACHE_TTL", "90s")
	t.Setenv("CONTENT_DATABASE_DRIVER", "postgres")
	t.Setenv("CONTENT_DATABASE_DSN", "postgres://blog@db/blog?sslmode=disable")
	t.Setenv("CONTENT_PUBLISH_MAX_ATTEMPTS", "5")

	cfg, err := Load("")
	require.NoError(t, err)

	cc := cfg.CacheConfig()
	assert.Equal(t, cache.BackendRedis, cc.Backend)
	assert.Equal(t, "cache:6379", cc.Redis.Addr)
	assert.Equal(t, 90*time.Second, cc.TTL)
	assert.Equal(t, "postgres", cfg.DatabaseConfig().Driver)
	assert.Equal(t, 5, cfg.Publish.MaxAttempts)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "content.yaml")
	data := []byte(`
server:
  addr: ":9000"
cache:
  enabled: false
pagination:
  default_per_page: 20
  allowed_per_page: [10, 20, 40]
log:
  level: debug
  development: true
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, filter.Paging{Allowed: []int{10, 20, 40}, Default: 20}, cfg.Paging())

	logger, err := cfg.Log.Logger()
	require.NoError(t, err)
	assert.NotNil(t, logger)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "driver", mutate: func(c *Config) { c.Database.Driver = "mysql" }},
		{name: "dsn", mutate: func(c *Config) { c.Database.DSN = "" }},
		{name: "cache ttl", mutate: func(c *Config) { c.Cache.TTL = 0 }},
		{name: "cache backend", mutate: func(c *Config) { c.Cache.Backend = "memcached" }},
		{name: "default page size", mutate: func(c *Config) { c.Pagination.DefaultPerPage = 7 }},
		{name: "page sizes", mutate: func(c *Config) { c.Pagination.AllowedPerPage = nil }},
		{name: "cron spec", mutate: func(c *Config) { c.Publish.Spec = "sometimes" }},
		{name: "log level", mutate: func(c *Config) { c.Log.Level = "loud" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			cfg.Pagination.AllowedPerPage = append([]int(nil), base.Pagination.AllowedPerPage...)
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	t.Run("disabled sections are not checked", func(t *testing.T) {
		cfg := base
		cfg.Cache.Enabled = false
		cfg.Cache.TTL = 0
		cfg.Publish.Enabled = false
		cfg.Publish.Spec = ""
		assert.NoError(t, cfg.Validate())
	})
}
