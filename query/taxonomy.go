package query

import (
	"context"
	"net/url"

	"github.com/goliatone/go-content-repository/cache"
	"github.com/goliatone/go-content-repository/model"
	"github.com/goliatone/go-content-repository/repository"
	"github.com/goliatone/go-content-repository/request"
	gorepo "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// postNamespace tags counted listings so post mutations refresh the counts.
const postNamespace = "post"

// CategoryList lists categories with the number of visible posts in each.
type CategoryList struct {
	repo       repository.Repository[model.Category]
	normalizer *request.Normalizer
	opts       Options
}

func NewCategoryList(repo repository.Repository[model.Category], opts Options) *CategoryList {
	return &CategoryList{
		repo:       repo,
		normalizer: request.New(CategorySorting(), opts.Paging, request.CategoryFields()...),
		opts:       opts,
	}
}

func (q *CategoryList) Normalizer() *request.Normalizer {
	return q.normalizer
}

func (q *CategoryList) Run(ctx context.Context, values url.Values) (*repository.Result[model.Category], error) {
	req := q.normalizer.Normalize(values)
	res, err := q.repo.Paginate(cache.WithTags(ctx, postNamespace), repository.ListParams{
		Name:   "categories_with_counts",
		Filter: req.Filter,
		Sort:   req.Sort,
		Page:   req.Page,
		Scopes: []gorepo.SelectCriteria{categoryPostsCount},
	})
	if err != nil {
		return nil, err
	}
	return withLinks(res, q.opts.BasePath, req.Query), nil
}

func categoryPostsCount(q *bun.SelectQuery) *bun.SelectQuery {
	return q.
		ColumnExpr("?TableAlias.*").
		ColumnExpr("(SELECT COUNT(*) FROM posts AS p WHERE p.category_id = ?TableAlias.id AND p.deleted_at IS NULL) AS posts_count")
}

// TagList lists tags with the number of visible posts carrying each.
type TagList struct {
	repo       repository.Repository[model.Tag]
	normalizer *request.Normalizer
	opts       Options
}

func NewTagList(repo repository.Repository[model.Tag], opts Options) *TagList {
	return &TagList{
		repo:       repo,
		normalizer: request.New(TagSorting(), opts.Paging, request.TagFields()...),
		opts:       opts,
	}
}

func (q *TagList) Normalizer() *request.Normalizer {
	return q.normalizer
}

func (q *TagList) Run(ctx context.Context, values url.Values) (*repository.Result[model.Tag], error) {
	req := q.normalizer.Normalize(values)
	res, err := q.repo.Paginate(cache.WithTags(ctx, postNamespace), repository.ListParams{
		Name:   "tags_with_counts",
		Filter: req.Filter,
		Sort:   req.Sort,
		Page:   req.Page,
		Scopes: []gorepo.SelectCriteria{tagPostsCount},
	})
	if err != nil {
		return nil, err
	}
	return withLinks(res, q.opts.BasePath, req.Query), nil
}

func tagPostsCount(q *bun.SelectQuery) *bun.SelectQuery {
	return q.
		ColumnExpr("?TableAlias.*").
		ColumnExpr("(SELECT COUNT(*) FROM post_tags AS pt JOIN posts AS p ON p.id = pt.post_id WHERE pt.tag_id = ?TableAlias.id AND p.deleted_at IS NULL) AS posts_count")
}
