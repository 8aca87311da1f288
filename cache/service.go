package cache

import "context"

// KeySerializer builds a cache key from a method name + arbitrary args.
// It is responsible for producing stable keys across calls.
type KeySerializer interface {
	SerializeKey(method string, args ...any) string
}

// FetchFn is the function signature CacheService expects when fetching from the source of truth.
type FetchFn[T any] func(ctx context.Context) (T, error)

// CacheService exposes the read-through caching operations repositories need.
type CacheService interface {
	GetOrFetch(ctx context.Context, key string, fetchFn any) (any, error)
	Delete(ctx context.Context, key string) error
}

// TagInvalidator is implemented by backends that index keys by the tags
// attached with WithTags.
type TagInvalidator interface {
	InvalidateTags(ctx context.Context, tags ...string) error
}

// PrefixInvalidator is implemented by backends that can enumerate keys.
type PrefixInvalidator interface {
	DeleteByPrefix(ctx context.Context, prefix string) error
}

// GetOrFetch is a type-safe wrapper function that provides generic support for CacheService.
func GetOrFetch[T any](ctx context.Context, service CacheService, key string, fetchFn FetchFn[T]) (T, error) {
	var zero T
	result, err := service.GetOrFetch(ctx, key, fetchFn)
	if err != nil {
		return zero, err
	}
	if result == nil {
		return zero, nil
	}
	typed, ok := result.(T)
	if !ok {
		return zero, &TypeMismatchError{Key: key, Got: result}
	}
	return typed, nil
}

// TypeMismatchError is returned when a cached value does not have the type
// the caller asked for, e.g. two call sites sharing a key by mistake.
type TypeMismatchError struct {
	Key string
	Got any
}

func (e *TypeMismatchError) Error() string {
	return "cache: unexpected value type for key " + e.Key
}
