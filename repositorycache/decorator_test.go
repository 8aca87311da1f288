package repositorycache

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sync"
	"testing"

	"github.com/goliatone/go-content-repository/filter"
	"github.com/goliatone/go-content-repository/repository"
)

type testPost struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

// mockRepository tracks method calls and returns canned results.
type mockRepository[T any] struct {
	mu    sync.Mutex
	calls []string

	findResult     *T
	findError      error
	paginateResult *repository.Result[T]
	paginateError  error
	mutateError    error
	lockResult     *T
}

func (m *mockRepository[T]) recordCall(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, method)
}

func (m *mockRepository[T]) getCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockRepository[T]) Namespace() string { return "post" }

func (m *mockRepository[T]) Find(ctx context.Context, id int64, relations ...string) (*T, error) {
	m.recordCall("Find")
	return m.findResult, m.findError
}

func (m *mockRepository[T]) FindBy(ctx context.Context, column string, value any, relations ...string) (*T, error) {
	m.recordCall("FindBy")
	return m.findResult, m.findError
}

func (m *mockRepository[T]) Paginate(ctx context.Context, params repository.ListParams) (*repository.Result[T], error) {
	m.recordCall("Paginate")
	return m.paginateResult, m.paginateError
}

func (m *mockRepository[T]) Create(ctx context.Context, record *T) (*T, error) {
	m.recordCall("Create")
	return record, m.mutateError
}

func (m *mockRepository[T]) Update(ctx context.Context, id int64, attrs map[string]any) (bool, error) {
	m.recordCall("Update")
	return m.mutateError == nil, m.mutateError
}

func (m *mockRepository[T]) Delete(ctx context.Context, id int64) (int, error) {
	m.recordCall("Delete")
	return 1, m.mutateError
}

func (m *mockRepository[T]) DeleteMany(ctx context.Context, ids []int64) (int, error) {
	m.recordCall("DeleteMany")
	return len(ids), m.mutateError
}

func (m *mockRepository[T]) RestoreMany(ctx context.Context, ids []int64) (int, error) {
	m.recordCall("RestoreMany")
	return len(ids), m.mutateError
}

func (m *mockRepository[T]) ForceDeleteMany(ctx context.Context, ids []int64) (int, error) {
	m.recordCall("ForceDeleteMany")
	return len(ids), m.mutateError
}

func (m *mockRepository[T]) Lock(ctx context.Context, id int64, fn repository.LockFunc[T]) (*T, error) {
	m.recordCall("Lock")
	return m.lockResult, m.mutateError
}

// mockCacheService tracks cache operations and can simulate hits and errors.
type mockCacheService struct {
	mu      sync.Mutex
	calls   []string
	storage map[string]any
	errors  map[string]error
}

func newMockCacheService() *mockCacheService {
	return &mockCacheService{
		storage: make(map[string]any),
		errors:  make(map[string]error),
	}
}

// SetCacheValue pre-populates the cache to simulate a hit.
func (m *mockCacheService) SetCacheValue(key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storage[key] = value
}

// SetCacheError makes every read of key fail with err.
func (m *mockCacheService) SetCacheError(key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[key] = err
}

func (m *mockCacheService) recordCall(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, method)
}

func (m *mockCacheService) getCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockCacheService) GetOrFetch(ctx context.Context, key string, fetchFn any) (any, error) {
	m.recordCall(fmt.Sprintf("GetOrFetch:%s", key))

	m.mu.Lock()
	if err, exists := m.errors[key]; exists {
		m.mu.Unlock()
		return nil, err
	}
	if value, exists := m.storage[key]; exists {
		m.mu.Unlock()
		return value, nil
	}
	m.mu.Unlock()

	fv := reflect.ValueOf(fetchFn)
	result := fv.Call([]reflect.Value{reflect.ValueOf(ctx)})
	if len(result) != 2 {
		return nil, errors.New("fetchFn must return (T, error)")
	}
	if !result[1].IsNil() {
		return nil, result[1].Interface().(error)
	}

	value := result[0].Interface()
	m.mu.Lock()
	m.storage[key] = value
	m.mu.Unlock()
	return value, nil
}

func (m *mockCacheService) Delete(ctx context.Context, key string) error {
	m.recordCall(fmt.Sprintf("Delete:%s", key))
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.storage, key)
	return nil
}

// trackingKeySerializer renders readable keys and records every call.
type trackingKeySerializer struct {
	mu    sync.Mutex
	calls []string
}

func (t *trackingKeySerializer) SerializeKey(method string, args ...any) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := fmt.Sprintf("%s_%v", method, args)
	t.calls = append(t.calls, key)
	return key
}

func (t *trackingKeySerializer) getCalls() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.calls...)
}

func newCached(repo *mockRepository[testPost], svc *mockCacheService) *CachedRepository[testPost] {
	return New[testPost](repo, svc, &trackingKeySerializer{})
}

func TestNew(t *testing.T) {
	baseRepo := &mockRepository[testPost]{}
	cacheService := newMockCacheService()
	keySerializer := &trackingKeySerializer{}

	cached := New[testPost](baseRepo, cacheService, keySerializer)
	if cached == nil {
		t.Fatal("New() returned nil")
	}
	if cached.Base() != baseRepo {
		t.Error("base repository not stored correctly")
	}
	if cached.cache != cacheService {
		t.Error("cache service not stored correctly")
	}
	if cached.keySerializer != keySerializer {
		t.Error("key serializer not stored correctly")
	}
	if cached.Namespace() != "post" {
		t.Errorf("expected namespace of base, got %s", cached.Namespace())
	}

	if New[testPost](baseRepo, cacheService, nil).keySerializer == nil {
		t.Error("expected a default key serializer")
	}
}

func TestCachedReadMethods_CacheHit(t *testing.T) {
	tests := []struct {
		name          string
		key           string
		value         any
		testOperation func(*CachedRepository[testPost]) error
	}{
		{
			name:  "Find",
			key:   "post::Find_[7 []]",
			value: &testPost{ID: 7, Title: "Cached"},
			testOperation: func(cached *CachedRepository[testPost]) error {
				post, err := cached.Find(context.Background(), 7)
				if err != nil {
					return err
				}
				if post.Title != "Cached" {
					return fmt.Errorf("expected cached post, got %+v", post)
				}
				return nil
			},
		},
		{
			name:  "FindBy",
			key:   "post::FindBy_[slug hello []]",
			value: &testPost{ID: 1, Title: "Cached"},
			testOperation: func(cached *CachedRepository[testPost]) error {
				post, err := cached.FindBy(context.Background(), "slug", "hello")
				if err != nil {
					return err
				}
				if post.ID != 1 {
					return fmt.Errorf("expected cached post, got %+v", post)
				}
				return nil
			},
		},
		{
			name:  "cached miss",
			key:   "post::Find_[404 []]",
			value: (*testPost)(nil),
			testOperation: func(cached *CachedRepository[testPost]) error {
				post, err := cached.Find(context.Background(), 404)
				if err != nil {
					return err
				}
				if post != nil {
					return fmt.Errorf("expected nil post, got %+v", post)
				}
				return nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockRepository[testPost]{}
			svc := newMockCacheService()
			svc.SetCacheValue(tt.key, tt.value)

			if err := tt.testOperation(newCached(repo, svc)); err != nil {
				t.Fatal(err)
			}
			if calls := repo.getCalls(); len(calls) != 0 {
				t.Errorf("expected no base calls on hit, got %v", calls)
			}
		})
	}
}

func TestCachedReadMethods_CacheMiss(t *testing.T) {
	repo := &mockRepository[testPost]{findResult: &testPost{ID: 3, Title: "Fresh"}}
	svc := newMockCacheService()
	cached := newCached(repo, svc)
	ctx := context.Background()

	for range 3 {
		post, err := cached.Find(ctx, 3, "Category")
		if err != nil {
			t.Fatal(err)
		}
		if post.ID != 3 {
			t.Fatalf("unexpected post %+v", post)
		}
	}
	if calls := repo.getCalls(); !slices.Equal(calls, []string{"Find"}) {
		t.Errorf("expected one base call, got %v", calls)
	}

	// Different relations are a different key.
	if _, err := cached.Find(ctx, 3); err != nil {
		t.Fatal(err)
	}
	if calls := repo.getCalls(); len(calls) != 2 {
		t.Errorf("expected a second base call, got %v", calls)
	}
}

func TestCachedPaginate_KeyCoversParams(t *testing.T) {
	repo := &mockRepository[testPost]{
		paginateResult: &repository.Result[testPost]{Records: []*testPost{{ID: 1}}, Total: 1},
	}
	svc := newMockCacheService()
	cached := newCached(repo, svc)
	ctx := context.Background()

	base := repository.ListParams{
		Name:   "admin",
		Filter: filter.NewDescriptor(filter.KeyStatus, "draft"),
		Sort:   filter.Sort{Field: "id", Direction: filter.Asc},
		Page:   filter.Page{Number: 1, Size: 15},
	}
	variants := []func(p repository.ListParams) repository.ListParams{
		func(p repository.ListParams) repository.ListParams { return p },
		func(p repository.ListParams) repository.ListParams { p.Name = "public"; return p },
		func(p repository.ListParams) repository.ListParams {
			p.Filter = p.Filter.With(filter.KeyStatus, "published")
			return p
		},
		func(p repository.ListParams) repository.ListParams { p.Sort.Direction = filter.Desc; return p },
		func(p repository.ListParams) repository.ListParams { p.Page.Number = 2; return p },
		func(p repository.ListParams) repository.ListParams { p.Columns = []string{"title"}; return p },
		func(p repository.ListParams) repository.ListParams { p.Relations = []string{"Tags"}; return p },
	}

	for _, v := range variants {
		if _, err := cached.Paginate(ctx, v(base)); err != nil {
			t.Fatal(err)
		}
	}
	if got := len(repo.getCalls()); got != len(variants) {
		t.Errorf("expected each variant to miss, got %d base calls", got)
	}

	res, err := cached.Paginate(ctx, base)
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 1 || len(repo.getCalls()) != len(variants) {
		t.Errorf("expected repeat to hit, calls=%v", repo.getCalls())
	}
}

func TestCachedRead_SourceErrorPropagates(t *testing.T) {
	boom := errors.New("connection reset")
	repo := &mockRepository[testPost]{findError: boom}
	svc := newMockCacheService()
	cached := newCached(repo, svc)

	_, err := cached.Find(context.Background(), 1)
	if !errors.Is(err, boom) {
		t.Fatalf("expected base error, got %v", err)
	}
	var src *sourceError
	if errors.As(err, &src) {
		t.Error("source marker must not leak to callers")
	}
	if calls := repo.getCalls(); len(calls) != 1 {
		t.Errorf("expected a single base call, got %v", calls)
	}
}

func TestCachedRead_CacheErrorFallsBack(t *testing.T) {
	repo := &mockRepository[testPost]{findResult: &testPost{ID: 1, Title: "From store"}}
	svc := newMockCacheService()
	svc.SetCacheError("post::Find_[1 []]", errors.New("cache unavailable"))
	cached := newCached(repo, svc)

	post, err := cached.Find(context.Background(), 1)
	if err != nil {
		t.Fatalf("expected fallback to store, got %v", err)
	}
	if post.Title != "From store" {
		t.Errorf("unexpected post %+v", post)
	}
}

func TestCachedRead_TypeMismatchFallsBack(t *testing.T) {
	repo := &mockRepository[testPost]{findResult: &testPost{ID: 2}}
	svc := newMockCacheService()
	svc.SetCacheValue("post::Find_[2 []]", "stale payload")
	cached := newCached(repo, svc)

	post, err := cached.Find(context.Background(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if post.ID != 2 {
		t.Errorf("unexpected post %+v", post)
	}
}

func TestWriteMethods_Delegation(t *testing.T) {
	repo := &mockRepository[testPost]{lockResult: &testPost{ID: 9}}
	svc := newMockCacheService()
	cached := newCached(repo, svc)
	ctx := context.Background()

	if _, err := cached.Create(ctx, &testPost{Title: "New"}); err != nil {
		t.Fatal(err)
	}
	if _, err := cached.Update(ctx, 1, map[string]any{"title": "x"}); err != nil {
		t.Fatal(err)
	}
	if _, err := cached.Delete(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := cached.DeleteMany(ctx, []int64{1, 2}); err != nil {
		t.Fatal(err)
	}
	if _, err := cached.RestoreMany(ctx, []int64{1}); err != nil {
		t.Fatal(err)
	}
	if _, err := cached.ForceDeleteMany(ctx, []int64{1}); err != nil {
		t.Fatal(err)
	}
	locked, err := cached.Lock(ctx, 9, func(*testPost) ([]string, error) { return nil, nil })
	if err != nil {
		t.Fatal(err)
	}
	if locked.ID != 9 {
		t.Errorf("unexpected lock result %+v", locked)
	}

	want := []string{"Create", "Update", "Delete", "DeleteMany", "RestoreMany", "ForceDeleteMany", "Lock"}
	if calls := repo.getCalls(); !slices.Equal(calls, want) {
		t.Errorf("expected %v, got %v", want, calls)
	}
	if calls := svc.getCalls(); len(calls) != 0 {
		t.Errorf("writes must not touch the cache, got %v", calls)
	}
}

func TestWriteMethods_ErrorPassThrough(t *testing.T) {
	boom := errors.New("constraint")
	repo := &mockRepository[testPost]{mutateError: boom}
	cached := newCached(repo, newMockCacheService())

	if _, err := cached.Create(context.Background(), &testPost{}); !errors.Is(err, boom) {
		t.Errorf("expected %v, got %v", boom, err)
	}
	if _, err := cached.DeleteMany(context.Background(), []int64{1}); !errors.Is(err, boom) {
		t.Errorf("expected %v, got %v", boom, err)
	}
}

func TestKeySerializerReceivesNamespacedMethod(t *testing.T) {
	serializer := &trackingKeySerializer{}
	repo := &mockRepository[testPost]{findResult: &testPost{ID: 1}}
	cached := New[testPost](repo, newMockCacheService(), serializer)

	if _, err := cached.Find(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	calls := serializer.getCalls()
	if len(calls) != 1 || calls[0] != "post::Find_[1 []]" {
		t.Errorf("unexpected serializer calls %v", calls)
	}
}
