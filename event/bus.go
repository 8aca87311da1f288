// Package event provides the synchronous in-process bus repositories use to
// announce committed mutations.
package event

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Change announces that records of a namespace were mutated and committed.
type Change struct {
	Namespace string
}

// Handler consumes change events.
type Handler func(ctx context.Context, change Change)

// Publisher is the side of the bus repositories depend on.
type Publisher interface {
	Publish(ctx context.Context, change Change)
}

type subscription struct {
	id        uint64
	namespace string
	handler   Handler
}

// Bus delivers every published change to its subscribers synchronously, in
// subscription order, before Publish returns.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscription
	logger *zap.Logger
}

func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{logger: logger}
}

// Subscribe registers handler for every namespace and returns a function that
// removes it.
func (b *Bus) Subscribe(handler Handler) func() {
	return b.SubscribeNamespace("", handler)
}

// SubscribeNamespace registers handler for changes of one namespace. An empty
// namespace matches all of them.
func (b *Bus) SubscribeNamespace(namespace string, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, namespace: namespace, handler: handler})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish runs the matching handlers. A panicking handler is logged and does
// not stop the remaining ones.
func (b *Bus) Publish(ctx context.Context, change Change) {
	b.mu.RLock()
	subs := make([]subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if s.namespace == "" || s.namespace == change.Namespace {
			subs = append(subs, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range subs {
		b.dispatch(ctx, s, change)
	}
}

func (b *Bus) dispatch(ctx context.Context, s subscription, change Change) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				zap.String("namespace", change.Namespace),
				zap.Any("panic", r),
			)
		}
	}()
	s.handler(ctx, change)
}

// Recorder is a Publisher that keeps the published changes, handy in tests
// and as a no-op sink.
type Recorder struct {
	mu      sync.Mutex
	changes []Change
}

func (r *Recorder) Publish(_ context.Context, change Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, change)
}

func (r *Recorder) Changes() []Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Change(nil), r.changes...)
}
