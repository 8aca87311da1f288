// Package database opens the bun handle for the content store.
package database

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/goliatone/go-content-repository/model"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"go.uber.org/zap"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Config selects the driver and connection pool.
type Config struct {
	Driver       string
	DSN          string
	Debug        bool
	MaxOpenConns int
}

// Open connects to the configured database and registers the content
// models. In-memory SQLite databases are limited to one connection, since
// every new connection would see an empty database.
func Open(cfg Config, logger *zap.Logger) (*bun.DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var db *bun.DB
	switch cfg.Driver {
	case DriverSQLite, "sqlite":
		sqldb, err := sql.Open(DriverSQLite, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		if strings.Contains(cfg.DSN, ":memory:") || strings.Contains(cfg.DSN, "mode=memory") {
			sqldb.SetMaxOpenConns(1)
		}
		db = bun.NewDB(sqldb, sqlitedialect.New())
	case DriverPostgres, "pg":
		sqldb, err := sql.Open(DriverPostgres, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		db = bun.NewDB(sqldb, pgdialect.New())
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	if cfg.MaxOpenConns > 0 && !strings.Contains(cfg.DSN, ":memory:") {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	model.Register(db)
	if cfg.Debug {
		db.AddQueryHook(NewQueryLogger(logger))
	}
	return db, nil
}
