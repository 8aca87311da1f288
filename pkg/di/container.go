package di

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-content-repository/cache"
	"github.com/goliatone/go-content-repository/event"
	"github.com/goliatone/go-content-repository/internal/httpapi"
	"github.com/goliatone/go-content-repository/model"
	"github.com/goliatone/go-content-repository/pkg/config"
	"github.com/goliatone/go-content-repository/publish"
	"github.com/goliatone/go-content-repository/query"
	"github.com/goliatone/go-content-repository/repository"
	"github.com/goliatone/go-content-repository/repositorycache"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Container wires the content services together: one store per entity
// family, the change bus, the shared cache and its invalidator, the query
// objects and the publication workflow. Reads go through the cached
// repositories when the cache is enabled; the publisher always uses the bare
// post store.
type Container struct {
	cfg    config.Config
	logger *zap.Logger
	db     *bun.DB
	bus    *event.Bus

	cacheService  cache.CacheService
	keySerializer cache.KeySerializer
	invalidator   *repositorycache.Invalidator
	unsubscribe   func()

	postStore     *repository.Store[model.Post]
	categoryStore *repository.Store[model.Category]
	tagStore      *repository.Store[model.Tag]

	posts      repository.Repository[model.Post]
	categories repository.Repository[model.Category]
	tags       repository.Repository[model.Tag]

	postList       *query.PostList
	publicPostList *query.PublicPostList
	postDetail     *query.PostDetail
	categoryList   *query.CategoryList
	tagList        *query.TagList

	publisher *publish.Publisher
	scheduler *publish.Scheduler
}

// Option customizes a Container.
type Option func(*options)

type options struct {
	now          func() time.Time
	cacheService cache.CacheService
}

// WithClock replaces time.Now for publication checks and transitions.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithCacheService uses svc instead of building the configured backend.
func WithCacheService(svc cache.CacheService) Option {
	return func(o *options) {
		o.cacheService = svc
	}
}

// NewContainer builds every service from cfg on top of db. The schema must
// already exist.
func NewContainer(ctx context.Context, cfg config.Config, db *bun.DB, logger *zap.Logger, opts ...Option) (*Container, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Container{
		cfg:    cfg,
		logger: logger,
		db:     db,
		bus:    event.NewBus(logger.Named("events")),
	}

	paging := cfg.Paging()
	c.postStore = repository.NewStore[model.Post](db, repository.Options{
		Pipeline:  query.PostPipeline(),
		Sorting:   query.PostSorting(),
		Paging:    paging,
		Publisher: c.bus,
		Logger:    logger,
		OnPurge:   query.PostLinkCleanup(),
	})
	c.categoryStore = repository.NewStore[model.Category](db, repository.Options{
		Pipeline:  query.CategoryPipeline(),
		Sorting:   query.CategorySorting(),
		Paging:    paging,
		Publisher: c.bus,
		Logger:    logger,
	})
	c.tagStore = repository.NewStore[model.Tag](db, repository.Options{
		Pipeline:  query.TagPipeline(),
		Sorting:   query.TagSorting(),
		Paging:    paging,
		Publisher: c.bus,
		Logger:    logger,
		OnPurge:   query.TagLinkCleanup(),
	})

	c.posts, c.categories, c.tags = c.postStore, c.categoryStore, c.tagStore
	if cfg.Cache.Enabled {
		if err := c.setupCache(ctx, o.cacheService); err != nil {
			return nil, err
		}
		c.posts = NewCachedRepository[model.Post](c, c.postStore)
		c.categories = NewCachedRepository[model.Category](c, c.categoryStore)
		c.tags = NewCachedRepository[model.Tag](c, c.tagStore)
	}

	qopts := query.Options{Paging: paging, Now: o.now}
	c.postList = query.NewPostList(c.posts, withBase(qopts, "/api/admin/posts"))
	c.publicPostList = query.NewPublicPostList(c.posts, withBase(qopts, "/api/posts"))
	c.postDetail = query.NewPostDetail(c.posts, qopts)
	c.categoryList = query.NewCategoryList(c.categories, withBase(qopts, "/api/categories"))
	c.tagList = query.NewTagList(c.tags, withBase(qopts, "/api/tags"))

	c.publisher = publish.NewPublisher(c.postStore,
		publish.WithClock(o.now),
		publish.WithLogger(logger.Named("publish")),
	)
	if cfg.Publish.Enabled {
		scheduler, err := publish.NewScheduler(c.publisher, cfg.SchedulerConfig(), logger)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.scheduler = scheduler
	}

	logger.Info("container ready",
		zap.Bool("cache", cfg.Cache.Enabled),
		zap.String("invalidation", c.InvalidationMode()),
		zap.Bool("scheduler", c.scheduler != nil),
	)
	return c, nil
}

func (c *Container) setupCache(ctx context.Context, svc cache.CacheService) error {
	if svc == nil {
		var err error
		svc, err = cache.NewCacheServiceWithFallback(ctx, c.cfg.CacheConfig(), c.logger.Named("cache"))
		if err != nil {
			return fmt.Errorf("cache: %w", err)
		}
	}
	// Post reads embed categories and tags, and taxonomy listings count
	// posts. Prefix invalidation has no tags to follow these links.
	postNS, categoryNS, tagNS := c.postStore.Namespace(), c.categoryStore.Namespace(), c.tagStore.Namespace()
	inv, err := repositorycache.NewInvalidator(svc, c.logger.Named("invalidator"),
		repositorycache.WithDependents(categoryNS, postNS),
		repositorycache.WithDependents(tagNS, postNS),
		repositorycache.WithDependents(postNS, categoryNS, tagNS),
	)
	if err != nil {
		return err
	}

	c.cacheService = svc
	c.keySerializer = cache.NewHashedKeySerializer(nil)
	c.invalidator = inv
	c.unsubscribe = c.bus.Subscribe(inv.Handle)
	return nil
}

func withBase(o query.Options, path string) query.Options {
	o.BasePath = path
	return o
}

// Close detaches the invalidator from the bus. The database is owned by the
// caller.
func (c *Container) Close() {
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
}

func (c *Container) Config() config.Config { return c.cfg }

func (c *Container) Logger() *zap.Logger { return c.logger }

func (c *Container) DB() *bun.DB { return c.db }

func (c *Container) Bus() *event.Bus { return c.bus }

// CacheService is nil when the cache is disabled.
func (c *Container) CacheService() cache.CacheService {
	return c.cacheService
}

func (c *Container) KeySerializer() cache.KeySerializer {
	return c.keySerializer
}

// InvalidationMode is "tag", "prefix" or "none".
func (c *Container) InvalidationMode() string {
	if c.invalidator == nil {
		return "none"
	}
	return c.invalidator.Mode()
}

func (c *Container) Posts() repository.Repository[model.Post] { return c.posts }

func (c *Container) Categories() repository.Repository[model.Category] { return c.categories }

func (c *Container) Tags() repository.Repository[model.Tag] { return c.tags }

func (c *Container) PostList() *query.PostList { return c.postList }

func (c *Container) PublicPostList() *query.PublicPostList { return c.publicPostList }

func (c *Container) PostDetail() *query.PostDetail { return c.postDetail }

func (c *Container) CategoryList() *query.CategoryList { return c.categoryList }

func (c *Container) TagList() *query.TagList { return c.tagList }

func (c *Container) Publisher() *publish.Publisher { return c.publisher }

// Scheduler is nil when scheduled publication is disabled.
func (c *Container) Scheduler() *publish.Scheduler { return c.scheduler }

// HTTPServices hands the read and admin components to the HTTP routes.
func (c *Container) HTTPServices() httpapi.Services {
	return httpapi.Services{
		Posts:          c.posts,
		PostList:       c.postList,
		PublicPostList: c.publicPostList,
		PostDetail:     c.postDetail,
		CategoryList:   c.categoryList,
		TagList:        c.tagList,
		Publisher:      c.publisher,
	}
}

// NewCachedRepository wraps base with the container's cache service and key
// serializer. It panics when the cache is disabled.
//
// Since Go methods cannot have type parameters, this is provided as a package-level function.
// Example: NewCachedRepository[model.Post](container, postStore)
func NewCachedRepository[T any](container *Container, base repository.Repository[T]) *repositorycache.CachedRepository[T] {
	if container.cacheService == nil {
		panic("di: NewCachedRepository called with the cache disabled")
	}
	return repositorycache.New(base, container.cacheService, container.keySerializer,
		repositorycache.WithLogger(container.logger.Named("cache")),
	)
}
