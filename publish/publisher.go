// Package publish moves posts between draft, scheduled and published under a
// row lock, and runs the scheduled publication job.
package publish

import (
	"context"
	"errors"
	"time"

	"github.com/goliatone/go-content-repository/filter"
	"github.com/goliatone/go-content-repository/model"
	"github.com/goliatone/go-content-repository/repository"
	"go.uber.org/zap"
)

var (
	ErrAlreadyPublished = errors.New("post is already published")
	ErrAlreadyDraft     = errors.New("post is already a draft")
	ErrNotFound         = errors.New("post not found")
)

// duePageSize bounds one page of the due scan.
const duePageSize = 100

// Publisher runs post state transitions. It should be given the bare store:
// transitions and the due scan must see committed state.
type Publisher struct {
	repo   repository.Repository[model.Post]
	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		p.now = now
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(repo repository.Repository[model.Post], opts ...Option) *Publisher {
	p := &Publisher{repo: repo, now: time.Now, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish makes the post public now. A publication time already in the past
// is kept.
func (p *Publisher) Publish(ctx context.Context, id int64) (*model.Post, error) {
	now := p.now().UTC()
	return p.transition(ctx, id, func(post *model.Post) ([]string, error) {
		if post.Status == model.StatusPublished {
			return nil, ErrAlreadyPublished
		}
		post.Status = model.StatusPublished
		if post.PublishedAt == nil || post.PublishedAt.After(now) {
			post.PublishedAt = &now
		}
		return []string{"status", "published_at"}, nil
	})
}

// Unpublish turns a published or scheduled post back into a draft. The
// publication time is kept for the record.
func (p *Publisher) Unpublish(ctx context.Context, id int64) (*model.Post, error) {
	return p.transition(ctx, id, func(post *model.Post) ([]string, error) {
		if post.Status == model.StatusDraft {
			return nil, ErrAlreadyDraft
		}
		post.Status = model.StatusDraft
		return []string{"status"}, nil
	})
}

// Schedule sets the post to go public at at.
func (p *Publisher) Schedule(ctx context.Context, id int64, at time.Time) (*model.Post, error) {
	at = at.UTC()
	return p.transition(ctx, id, func(post *model.Post) ([]string, error) {
		if post.Status == model.StatusPublished {
			return nil, ErrAlreadyPublished
		}
		post.Status = model.StatusScheduled
		post.PublishedAt = &at
		return []string{"status", "published_at"}, nil
	})
}

func (p *Publisher) transition(ctx context.Context, id int64, fn repository.LockFunc[model.Post]) (*model.Post, error) {
	post, err := p.repo.Lock(ctx, id, fn)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, ErrNotFound
	}
	return post, nil
}

// DueIDs lists the scheduled posts whose publication time is not after now.
func (p *Publisher) DueIDs(ctx context.Context, now time.Time) ([]int64, error) {
	d := filter.NewDescriptor(
		filter.KeyStatus, model.StatusScheduled,
		filter.KeyPublishedAtTo, now.UTC(),
	)

	var ids []int64
	for page := 1; ; page++ {
		res, err := p.repo.Paginate(ctx, repository.ListParams{
			Name:    "due_posts",
			Filter:  d,
			Sort:    filter.Sort{Field: "id", Direction: filter.Asc},
			Page:    filter.Page{Number: page, Size: duePageSize},
			Columns: []string{"id"},
		})
		if err != nil {
			return nil, err
		}
		for _, post := range res.Records {
			ids = append(ids, post.ID)
		}
		if !res.HasMore() || len(res.Records) == 0 {
			return ids, nil
		}
	}
}

// PublishScheduled publishes id if it is still scheduled and due at now. It
// reports false when the post moved on in the meantime.
func (p *Publisher) PublishScheduled(ctx context.Context, id int64, now time.Time) (bool, error) {
	now = now.UTC()
	published := false
	_, err := p.transition(ctx, id, func(post *model.Post) ([]string, error) {
		if post.Status != model.StatusScheduled || post.PublishedAt == nil || post.PublishedAt.After(now) {
			return nil, nil
		}
		post.Status = model.StatusPublished
		published = true
		return []string{"status"}, nil
	})
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return published, err
}

// PublishDue publishes every due scheduled post once, without retries, and
// returns how many went public. The first failure stops the run.
func (p *Publisher) PublishDue(ctx context.Context, now time.Time) (int, error) {
	ids, err := p.DueIDs(ctx, now)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		ok, err := p.PublishScheduled(ctx, id, now)
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	if n > 0 {
		p.logger.Info("scheduled posts published", zap.Int("count", n))
	}
	return n, nil
}
