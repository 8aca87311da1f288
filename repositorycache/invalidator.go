package repositorycache

import (
	"context"
	"fmt"

	"github.com/goliatone/go-content-repository/cache"
	"github.com/goliatone/go-content-repository/event"
	"go.uber.org/zap"
)

// Invalidator purges the cached reads of a namespace. It prefers tag
// invalidation and falls back to deleting by the "namespace::" key prefix
// when the backend has no tag index. The strategy is picked once, in
// NewInvalidator.
type Invalidator struct {
	purge      func(ctx context.Context, namespace string) error
	mode       string
	dependents map[string][]string
	logger     *zap.Logger
}

// InvalidatorOption configures an Invalidator.
type InvalidatorOption func(*Invalidator)

// WithDependents declares namespaces whose cached reads embed records of
// namespace. Tagged entries already carry the embedded namespaces, so prefix
// mode is the only one that needs to purge the dependents as well.
func WithDependents(namespace string, dependents ...string) InvalidatorOption {
	return func(i *Invalidator) {
		if i.dependents == nil {
			i.dependents = make(map[string][]string)
		}
		i.dependents[namespace] = append(i.dependents[namespace], dependents...)
	}
}

// NewInvalidator returns an error when svc supports neither tags nor prefix
// deletion.
func NewInvalidator(svc cache.CacheService, logger *zap.Logger, opts ...InvalidatorOption) (*Invalidator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	inv := &Invalidator{logger: logger}
	for _, opt := range opts {
		opt(inv)
	}

	switch backend := svc.(type) {
	case cache.TagInvalidator:
		inv.mode = "tag"
		inv.purge = func(ctx context.Context, namespace string) error {
			return backend.InvalidateTags(ctx, namespace)
		}
	case cache.PrefixInvalidator:
		inv.mode = "prefix"
		inv.purge = func(ctx context.Context, namespace string) error {
			return backend.DeleteByPrefix(ctx, cache.NamespacedMethod(namespace, ""))
		}
	default:
		return nil, fmt.Errorf("cache service %T supports neither tag nor prefix invalidation", svc)
	}
	return inv, nil
}

// Mode is "tag" or "prefix".
func (i *Invalidator) Mode() string {
	return i.mode
}

// Invalidate purges every entry of namespace.
func (i *Invalidator) Invalidate(ctx context.Context, namespace string) error {
	if namespace == "" {
		return nil
	}
	if err := i.purge(ctx, namespace); err != nil {
		return fmt.Errorf("invalidate %s by %s: %w", namespace, i.mode, err)
	}
	if i.mode != "prefix" {
		return nil
	}
	for _, dep := range i.dependents[namespace] {
		if dep == namespace {
			continue
		}
		if err := i.purge(ctx, dep); err != nil {
			return fmt.Errorf("invalidate %s after %s by %s: %w", dep, namespace, i.mode, err)
		}
	}
	return nil
}

// Handle is an event.Handler. Failures are logged and dropped: a stale or
// missing cache costs a store round-trip, never a failed write.
func (i *Invalidator) Handle(ctx context.Context, change event.Change) {
	if err := i.Invalidate(ctx, change.Namespace); err != nil {
		i.logger.Warn("cache invalidation failed",
			zap.String("namespace", change.Namespace),
			zap.Error(err),
		)
		return
	}
	i.logger.Debug("cache invalidated", zap.String("namespace", change.Namespace))
}
