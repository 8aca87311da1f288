package publish

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-content-repository/event"
	"github.com/goliatone/go-content-repository/model"
	"github.com/goliatone/go-content-repository/pkg/testsupport"
	"github.com/goliatone/go-content-repository/query"
	"github.com/goliatone/go-content-repository/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testNow  = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	farAhead = time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC)
)

func newPostStore(t *testing.T) (*repository.Store[model.Post], *event.Recorder) {
	t.Helper()
	db, _ := testsupport.NewSeededDB(t)
	rec := &event.Recorder{}
	return repository.NewStore[model.Post](db, repository.Options{
		Pipeline:  query.PostPipeline(),
		Sorting:   query.PostSorting(),
		Publisher: rec,
	}), rec
}

func clock(at time.Time) Option {
	return WithClock(func() time.Time { return at })
}

func TestPublisher_Publish(t *testing.T) {
	store, rec := newPostStore(t)
	p := NewPublisher(store, clock(testNow))
	ctx := context.Background()

	post, err := p.Publish(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPublished, post.Status)
	require.NotNil(t, post.PublishedAt)
	assert.Equal(t, testNow, post.PublishedAt.UTC())

	_, err = p.Publish(ctx, 2)
	assert.ErrorIs(t, err, ErrAlreadyPublished)
	assert.Len(t, rec.Changes(), 1)

	stored, err := store.Find(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPublished, stored.Status)

	_, err = p.Publish(ctx, 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPublisher_PublishScheduledEarly(t *testing.T) {
	store, _ := newPostStore(t)
	p := NewPublisher(store, clock(testNow))

	post, err := p.Publish(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, testNow, post.PublishedAt.UTC(), "a future publication time is pulled in")
}

func TestPublisher_Unpublish(t *testing.T) {
	store, rec := newPostStore(t)
	p := NewPublisher(store, clock(testNow))
	ctx := context.Background()

	post, err := p.Unpublish(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDraft, post.Status)
	assert.NotNil(t, post.PublishedAt)

	_, err = p.Unpublish(ctx, 1)
	assert.ErrorIs(t, err, ErrAlreadyDraft)

	// Publishing again keeps the original, past publication time.
	post, err = p.Publish(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC), post.PublishedAt.UTC())
	assert.Len(t, rec.Changes(), 2)
}

func TestPublisher_ConcurrentPublish(t *testing.T) {
	store, rec := newPostStore(t)
	p := NewPublisher(store, clock(testNow))

	const workers = 8
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		already   atomic.Int32
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Publish(context.Background(), 2)
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, ErrAlreadyPublished):
				already.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), succeeded.Load())
	assert.Equal(t, int32(workers-1), already.Load())
	assert.Len(t, rec.Changes(), 1)
}

func TestPublisher_PublishDue(t *testing.T) {
	store, rec := newPostStore(t)
	p := NewPublisher(store, clock(testNow))
	ctx := context.Background()

	ids, err := p.DueIDs(ctx, testNow)
	require.NoError(t, err)
	assert.Empty(t, ids, "post 4 is scheduled for 2099")

	n, err := p.PublishDue(ctx, farAhead)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, rec.Changes(), 1)

	post, err := store.Find(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPublished, post.Status)
	assert.Equal(t, time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC), post.PublishedAt.UTC())

	n, err = p.PublishDue(ctx, farAhead)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPublisher_PublishScheduledSkipsMovedPosts(t *testing.T) {
	store, rec := newPostStore(t)
	p := NewPublisher(store, clock(testNow))
	ctx := context.Background()

	_, err := p.Schedule(ctx, 2, testNow.Add(time.Hour))
	require.NoError(t, err)

	ok, err := p.PublishScheduled(ctx, 2, testNow)
	require.NoError(t, err)
	assert.False(t, ok, "not due yet")

	ok, err = p.PublishScheduled(ctx, 1, farAhead)
	require.NoError(t, err)
	assert.False(t, ok, "already published")

	ok, err = p.PublishScheduled(ctx, 404, farAhead)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = p.PublishScheduled(ctx, 2, testNow.Add(2*time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)

	// schedule + publish
	assert.Len(t, rec.Changes(), 2)

	_, err = p.Schedule(ctx, 2, farAhead)
	assert.ErrorIs(t, err, ErrAlreadyPublished)
}

// flakyRepo fails the first failures Lock calls.
type flakyRepo struct {
	repository.Repository[model.Post]
	failures int
	calls    atomic.Int32
}

var errLockTimeout = errors.New("lock wait timeout")

func (f *flakyRepo) Lock(ctx context.Context, id int64, fn repository.LockFunc[model.Post]) (*model.Post, error) {
	if int(f.calls.Add(1)) <= f.failures {
		return nil, errLockTimeout
	}
	return f.Repository.Lock(ctx, id, fn)
}

func newTestScheduler(t *testing.T, repo repository.Repository[model.Post], cfg SchedulerConfig) (*Scheduler, *[]time.Duration) {
	t.Helper()
	s, err := NewScheduler(NewPublisher(repo, clock(farAhead)), cfg, nil)
	require.NoError(t, err)

	var sleeps []time.Duration
	s.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return s, &sleeps
}

func TestScheduler_RetriesWithDoublingBackoff(t *testing.T) {
	store, _ := newPostStore(t)
	repo := &flakyRepo{Repository: store, failures: 2}
	cfg := SchedulerConfig{Spec: "@every 1m", MaxAttempts: 3, BaseBackoff: 10 * time.Millisecond, Expiry: time.Minute}
	s, sleeps := newTestScheduler(t, repo, cfg)

	report := s.RunOnce(context.Background())
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 1, report.Due)
	assert.Equal(t, 1, report.Published)
	assert.Empty(t, report.Failed)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, *sleeps)
}

func TestScheduler_GivesUp(t *testing.T) {
	store, _ := newPostStore(t)
	repo := &flakyRepo{Repository: store, failures: 10}
	cfg := SchedulerConfig{Spec: "@every 1m", MaxAttempts: 3, BaseBackoff: time.Millisecond, Expiry: time.Minute}
	s, sleeps := newTestScheduler(t, repo, cfg)

	report := s.RunOnce(context.Background())
	assert.Equal(t, []int64{4}, report.Failed)
	assert.Zero(t, report.Published)
	assert.Equal(t, int32(3), repo.calls.Load())
	assert.Len(t, *sleeps, 2)
}

func TestScheduler_Expiry(t *testing.T) {
	store, _ := newPostStore(t)
	repo := &flakyRepo{Repository: store, failures: 10}
	cfg := SchedulerConfig{Spec: "@every 1m", MaxAttempts: 5, BaseBackoff: time.Hour, Expiry: time.Minute}
	s, sleeps := newTestScheduler(t, repo, cfg)

	report := s.RunOnce(context.Background())
	assert.Equal(t, []int64{4}, report.Failed)
	assert.Equal(t, int32(1), repo.calls.Load(), "the first backoff already exceeds the expiry")
	assert.Empty(t, *sleeps)
}

func TestSchedulerConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultSchedulerConfig().Validate())

	bad := DefaultSchedulerConfig()
	bad.Spec = "every now and then"
	assert.Error(t, bad.Validate())

	bad = DefaultSchedulerConfig()
	bad.MaxAttempts = 0
	assert.Error(t, bad.Validate())

	bad = DefaultSchedulerConfig()
	bad.Expiry = 0
	assert.Error(t, bad.Validate())
}

func TestScheduler_StartStop(t *testing.T) {
	store, _ := newPostStore(t)
	s, err := NewScheduler(NewPublisher(store), DefaultSchedulerConfig(), nil)
	require.NoError(t, err)

	s.Start()
	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
	assert.NoError(t, s.Stop(ctx))
}
