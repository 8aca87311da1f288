package cache

import (
	"context"

	"github.com/goliatone/go-content-repository/internal/cacheinfra"
)

// WithTags attaches cache tags to ctx. Tag-aware backends register every key
// read through GetOrFetch under ctx with these tags, so that
// TagInvalidator.InvalidateTags can drop them later.
func WithTags(ctx context.Context, tags ...string) context.Context {
	return cacheinfra.WithTags(ctx, tags...)
}

// TagsFromContext returns the tags attached to ctx.
func TagsFromContext(ctx context.Context) []string {
	return cacheinfra.TagsFromContext(ctx)
}
