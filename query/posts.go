package query

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-content-repository/cache"
	"github.com/goliatone/go-content-repository/filter"
	"github.com/goliatone/go-content-repository/model"
	"github.com/goliatone/go-content-repository/repository"
	"github.com/goliatone/go-content-repository/request"
	gorepo "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// listColumns leave out the body, which listings never render.
var listColumns = []string{
	"id", "title", "slug", "excerpt", "status", "category_id", "user_id",
	"published_at", "created_at", "updated_at", "deleted_at",
}

var postRelations = []string{"Category", "Tags"}

// relationTags are the namespaces embedded through postRelations. Post reads
// carry them as cache tags so a category or tag change refreshes the posts
// that render it.
var relationTags = []string{
	repository.NamespaceOf[model.Category](),
	repository.NamespaceOf[model.Tag](),
}

func withRelationTags(ctx context.Context) context.Context {
	return cache.WithTags(ctx, relationTags...)
}

// PostList is the admin listing: every filter, trashed modes included.
type PostList struct {
	repo       repository.Repository[model.Post]
	normalizer *request.Normalizer
	opts       Options
}

func NewPostList(repo repository.Repository[model.Post], opts Options) *PostList {
	return &PostList{
		repo:       repo,
		normalizer: request.New(PostSorting(), opts.Paging, request.PostFields()...),
		opts:       opts,
	}
}

// Normalizer exposes the accepted parameters for strict validation.
func (q *PostList) Normalizer() *request.Normalizer {
	return q.normalizer
}

func (q *PostList) Run(ctx context.Context, values url.Values) (*repository.Result[model.Post], error) {
	req := q.normalizer.Normalize(values)
	res, err := q.repo.Paginate(withRelationTags(ctx), repository.ListParams{
		Name:      "admin_posts",
		Filter:    req.Filter,
		Sort:      req.Sort,
		Page:      req.Page,
		Columns:   listColumns,
		Relations: postRelations,
	})
	if err != nil {
		return nil, err
	}
	return withLinks(res, q.opts.BasePath, req.Query), nil
}

// PublicPostList lists what readers can see: published posts whose
// publication time has passed, never trashed ones.
type PublicPostList struct {
	repo       repository.Repository[model.Post]
	normalizer *request.Normalizer
	opts       Options
}

func NewPublicPostList(repo repository.Repository[model.Post], opts Options) *PublicPostList {
	fields := make([]request.Field, 0)
	for _, f := range request.PostFields() {
		switch f.Key {
		case filter.KeyStatus, filter.KeyTrashed, filter.KeyUserID:
			continue
		}
		fields = append(fields, f)
	}
	return &PublicPostList{
		repo:       repo,
		normalizer: request.New(publicSorting(), opts.Paging, fields...),
		opts:       opts,
	}
}

func publicSorting() filter.Sorting {
	return filter.Sorting{
		Fields:  []string{"title", "published_at"},
		Default: filter.Sort{Field: "published_at", Direction: filter.Desc},
	}
}

func (q *PublicPostList) Run(ctx context.Context, values url.Values) (*repository.Result[model.Post], error) {
	req := q.normalizer.Normalize(values)

	// The clock is truncated to the minute so the bound, which is part of
	// the cache key, only changes once a minute.
	cutoff := q.opts.now().Truncate(time.Minute)
	if to, ok := req.Filter.Time(filter.KeyPublishedAtTo); !ok || to.After(cutoff) {
		req.Filter = req.Filter.With(filter.KeyPublishedAtTo, cutoff)
	}
	req.Filter = req.Filter.With(filter.KeyStatus, model.StatusPublished)

	res, err := q.repo.Paginate(withRelationTags(ctx), repository.ListParams{
		Name:      "public_posts",
		Filter:    req.Filter,
		Sort:      req.Sort,
		Page:      req.Page,
		Columns:   listColumns,
		Relations: postRelations,
		Scopes:    []gorepo.SelectCriteria{publishedOnly},
	})
	if err != nil {
		return nil, err
	}
	return withLinks(res, q.opts.BasePath, req.Query), nil
}

func publishedOnly(q *bun.SelectQuery) *bun.SelectQuery {
	return q.Where("?TableAlias.published_at IS NOT NULL")
}

// PostDetail loads single posts with their category and tags.
type PostDetail struct {
	repo repository.Repository[model.Post]
	opts Options
}

func NewPostDetail(repo repository.Repository[model.Post], opts Options) *PostDetail {
	return &PostDetail{repo: repo, opts: opts}
}

// BySlug returns the post only while it is publicly visible.
func (q *PostDetail) BySlug(ctx context.Context, slug string) (*model.Post, error) {
	slug = strings.TrimSpace(strings.ToLower(slug))
	if slug == "" {
		return nil, nil
	}
	post, err := q.repo.FindBy(withRelationTags(ctx), "slug", slug, postRelations...)
	if err != nil || post == nil {
		return nil, err
	}
	if !post.IsPublished(q.opts.now()) {
		return nil, nil
	}
	return post, nil
}

// ByID returns any visible post, whatever its status.
func (q *PostDetail) ByID(ctx context.Context, id int64) (*model.Post, error) {
	if id <= 0 {
		return nil, nil
	}
	return q.repo.Find(withRelationTags(ctx), id, postRelations...)
}
