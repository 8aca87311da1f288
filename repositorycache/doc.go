// Package repositorycache provides the cached repository decorator and the
// invalidator that keeps it fresh.
//
// # Overview
//
// CachedRepository wraps any repository.Repository and serves Find, FindBy
// and Paginate through a cache.CacheService. Every key is built with the
// namespace of the base repository as its first segment and every entry is
// tagged with that namespace:
//
//	post::Paginate::3c1a9f0e77b2d4a1
//
// Mutations and Lock pass through to the base repository. The base publishes
// an event.Change after commit; Invalidator.Handle subscribed to the bus
// turns it into a purge of the namespace.
//
// # Basic Usage
//
//	bus := event.NewBus(logger)
//	store := repository.NewStore[model.Post](db, repository.Options{Publisher: bus})
//
//	svc, _ := cache.NewCacheService(cache.DefaultConfig())
//	inv, _ := repositorycache.NewInvalidator(svc, logger)
//	bus.Subscribe(inv.Handle)
//
//	posts := repositorycache.New[model.Post](store, svc, cache.NewHashedKeySerializer(nil))
//	page, err := posts.Paginate(ctx, repository.ListParams{Name: "admin", Page: filter.Page{Number: 1}})
//
// # Extra Tags
//
// Listings that read other namespaces, e.g. categories with post counts,
// attach extra tags to ctx before calling the decorator:
//
//	ctx = cache.WithTags(ctx, "post")
//	categories.Paginate(ctx, params)
//
// A change to posts then purges that entry as well.
//
// # Failure Handling
//
// Errors of the base repository are returned unchanged. Any other error on
// the read path is logged and the call is answered by the base repository.
// Invalidation failures are logged by Handle and never reach the writer.
//
// When the backend has no tag index, Invalidator deletes by the
// "namespace::" prefix instead. Extra tags are not honoured in that mode.
package repositorycache
