package database

import (
	"context"
	"database/sql"
	"errors"
	"sync/atomic"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

var (
	_ bun.QueryHook = (*QueryLogger)(nil)
	_ bun.QueryHook = (*QueryCounter)(nil)
)

// QueryLogger logs every statement at debug level and failures at warn.
type QueryLogger struct {
	logger *zap.Logger
}

func NewQueryLogger(logger *zap.Logger) *QueryLogger {
	return &QueryLogger{logger: logger.Named("sql")}
}

func (h *QueryLogger) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *QueryLogger) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	fields := []zap.Field{
		zap.String("op", event.Operation()),
		zap.Duration("took", time.Since(event.StartTime)),
		zap.String("query", event.Query),
	}
	if event.Err != nil && !errors.Is(event.Err, sql.ErrNoRows) {
		h.logger.Warn("query failed", append(fields, zap.Error(event.Err))...)
		return
	}
	h.logger.Debug("query", fields...)
}

// QueryCounter counts executed statements. Tests use it to tell cache hits
// from store round-trips.
type QueryCounter struct {
	total   atomic.Int64
	selects atomic.Int64
}

func (c *QueryCounter) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (c *QueryCounter) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	c.total.Add(1)
	if event.Operation() == "SELECT" {
		c.selects.Add(1)
	}
}

// Total is the number of statements of any kind.
func (c *QueryCounter) Total() int64 { return c.total.Load() }

// Selects is the number of SELECT statements.
func (c *QueryCounter) Selects() int64 { return c.selects.Load() }

func (c *QueryCounter) Reset() {
	c.total.Store(0)
	c.selects.Store(0)
}
