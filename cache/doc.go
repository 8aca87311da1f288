// Package cache provides the cache port used by repositories, key
// serialization and the constructors for the bundled backends.
//
// # Overview
//
//   - CacheService: read-through GetOrFetch plus single key Delete
//   - TagInvalidator / PrefixInvalidator: optional bulk invalidation
//     capabilities; callers detect them with a type assertion
//   - KeySerializer: builds stable cache keys from method names and arguments
//
// Two backends ship with the package: an in-memory sturdyc cache with a tag
// index (NewCacheService) and a Redis cache storing msgpack payloads with one
// set per tag (NewRedisCacheService). NewCacheServiceWithFallback picks one
// from Config and degrades to memory when Redis does not answer.
//
// # Tags
//
// Tags travel on the context:
//
//	ctx = cache.WithTags(ctx, "post", "category")
//	res, err := cache.GetOrFetch(ctx, svc, key, fetch)
//
// Every key fetched under ctx is registered with both tags, and
// InvalidateTags(ctx, "post") drops it.
//
// # Keys
//
// The default serializer renders arguments by reflection; values that
// implement CacheKeyer render themselves. NewHashedKeySerializer keeps the
// method segment and replaces the arguments with an xxhash digest:
//
//	serializer := cache.NewHashedKeySerializer(nil)
//	key := serializer.SerializeKey(cache.NamespacedMethod("post", "Paginate"), descriptor, sort, page)
//	// post::Paginate::9f86d081884c7d65
//
// Function values serialize by code pointer, which is not unique across
// closures of the same literal. Do not pass criteria funcs as key arguments;
// pass a stable name instead.
//
// # Errors
//
// Backends never surface their own failures from GetOrFetch: a failed read
// falls through to fetchFn and a failed write is logged. Errors returned by
// GetOrFetch come from fetchFn or from an invalid fetchFn signature.
package cache
