package repositorycache

import (
	"context"
	"errors"

	"github.com/goliatone/go-content-repository/cache"
	"github.com/goliatone/go-content-repository/repository"
	"go.uber.org/zap"
)

// Interface assertion to ensure CachedRepository implements Repository[T]
var _ repository.Repository[any] = (*CachedRepository[any])(nil)

// CachedRepository decorates a base repository with read-through caching.
// Reads are keyed under the base namespace and tagged with it; writes pass
// through untouched and rely on the change event of the base to invalidate.
type CachedRepository[T any] struct {
	base          repository.Repository[T]
	cache         cache.CacheService
	keySerializer cache.KeySerializer
	logger        *zap.Logger
}

// Option configures a CachedRepository.
type Option func(*options)

type options struct {
	logger *zap.Logger
}

// WithLogger sets the logger used to report cache failures.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// New creates a new CachedRepository that wraps the base repository with caching
func New[T any](base repository.Repository[T], cacheService cache.CacheService, keySerializer cache.KeySerializer, opts ...Option) *CachedRepository[T] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if keySerializer == nil {
		keySerializer = cache.NewHashedKeySerializer(nil)
	}
	return &CachedRepository[T]{
		base:          base,
		cache:         cacheService,
		keySerializer: keySerializer,
		logger:        o.logger.With(zap.String("namespace", base.Namespace())),
	}
}

// Base returns the wrapped repository.
func (c *CachedRepository[T]) Base() repository.Repository[T] {
	return c.base
}

func (c *CachedRepository[T]) Namespace() string {
	return c.base.Namespace()
}

// Find retrieves a record by id, with caching. Misses are cached too.
func (c *CachedRepository[T]) Find(ctx context.Context, id int64, relations ...string) (*T, error) {
	key := c.key("Find", id, relations)
	return readThrough(ctx, c, key, func(ctx context.Context) (*T, error) {
		return c.base.Find(ctx, id, relations...)
	})
}

// FindBy retrieves a record by column value, with caching
func (c *CachedRepository[T]) FindBy(ctx context.Context, column string, value any, relations ...string) (*T, error) {
	key := c.key("FindBy", column, value, relations)
	return readThrough(ctx, c, key, func(ctx context.Context) (*T, error) {
		return c.base.FindBy(ctx, column, value, relations...)
	})
}

// Paginate retrieves one page of a listing, with caching. The key covers the
// use case name, filter, sort, page, columns and relations; scopes are
// identified by the name only.
func (c *CachedRepository[T]) Paginate(ctx context.Context, params repository.ListParams) (*repository.Result[T], error) {
	key := c.key("Paginate", params.Name, params.Filter, params.Sort, params.Page, params.Columns, params.Relations)
	return readThrough(ctx, c, key, func(ctx context.Context) (*repository.Result[T], error) {
		return c.base.Paginate(ctx, params)
	})
}

// Create creates a new record. Write operations pass through to base repository
func (c *CachedRepository[T]) Create(ctx context.Context, record *T) (*T, error) {
	return c.base.Create(ctx, record)
}

func (c *CachedRepository[T]) Update(ctx context.Context, id int64, attrs map[string]any) (bool, error) {
	return c.base.Update(ctx, id, attrs)
}

func (c *CachedRepository[T]) Delete(ctx context.Context, id int64) (int, error) {
	return c.base.Delete(ctx, id)
}

func (c *CachedRepository[T]) DeleteMany(ctx context.Context, ids []int64) (int, error) {
	return c.base.DeleteMany(ctx, ids)
}

func (c *CachedRepository[T]) RestoreMany(ctx context.Context, ids []int64) (int, error) {
	return c.base.RestoreMany(ctx, ids)
}

func (c *CachedRepository[T]) ForceDeleteMany(ctx context.Context, ids []int64) (int, error) {
	return c.base.ForceDeleteMany(ctx, ids)
}

// Lock always reads from the store; a locked read must see committed state.
func (c *CachedRepository[T]) Lock(ctx context.Context, id int64, fn repository.LockFunc[T]) (*T, error) {
	return c.base.Lock(ctx, id, fn)
}

func (c *CachedRepository[T]) key(method string, args ...any) string {
	return c.keySerializer.SerializeKey(cache.NamespacedMethod(c.base.Namespace(), method), args...)
}

// sourceError marks errors that came from the base repository so they can be
// told apart from cache failures.
type sourceError struct {
	err error
}

func (e *sourceError) Error() string { return e.err.Error() }
func (e *sourceError) Unwrap() error { return e.err }

// readThrough serves key from the cache, filling it from fetch on a miss. The
// entry is tagged with the namespace plus any tags already on ctx. Errors of
// fetch are returned as is; any other failure is logged and answered from
// the base repository directly.
func readThrough[T, R any](ctx context.Context, c *CachedRepository[T], key string, fetch cache.FetchFn[R]) (R, error) {
	tagged := cache.WithTags(ctx, c.base.Namespace())
	res, err := cache.GetOrFetch(tagged, c.cache, key, func(ctx context.Context) (R, error) {
		v, err := fetch(ctx)
		if err != nil {
			return v, &sourceError{err: err}
		}
		return v, nil
	})
	if err == nil {
		return res, nil
	}

	var src *sourceError
	if errors.As(err, &src) {
		var zero R
		return zero, src.err
	}

	c.logger.Warn("cache read failed, querying store",
		zap.String("key", key),
		zap.Error(err),
	)
	return fetch(ctx)
}
