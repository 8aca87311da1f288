// Package query holds one query object per entity and use case. A query
// object normalizes the raw request, forces the constraints of its use case,
// picks columns and relations, and calls a repository.
package query

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/goliatone/go-content-repository/filter"
	"github.com/goliatone/go-content-repository/repository"
	"github.com/uptrace/bun"
)

// Options are shared by every query object.
type Options struct {
	// BasePath prefixes pagination links, e.g. "/api/posts".
	BasePath string
	Paging   filter.Paging
	// Now is the clock used for publication checks. Defaults to time.Now.
	Now func() time.Time
}

func (o Options) now() time.Time {
	if o.Now == nil {
		return time.Now().UTC()
	}
	return o.Now().UTC()
}

// PostPipeline filters posts by keyword, status, category, tag, author,
// publication window and trashed mode.
func PostPipeline() *filter.Pipeline {
	return filter.NewPipeline(
		filter.Keyword(filter.KeyQuery, "title", "excerpt", "body"),
		filter.Equals(filter.KeyStatus, "status"),
		filter.Equals(filter.KeyCategoryID, "category_id"),
		filter.Equals(filter.KeyUserID, "user_id"),
		filter.Membership(filter.KeyTagID, "post_tags", "post_id", "tag_id"),
		filter.Range(filter.KeyPublishedAtFrom, filter.KeyPublishedAtTo, "published_at"),
		filter.Trashed(filter.KeyTrashed),
	)
}

func PostSorting() filter.Sorting {
	return filter.Sorting{
		Fields:  []string{"id", "title", "status", "published_at", "created_at", "updated_at"},
		Default: filter.Sort{Field: "created_at", Direction: filter.Desc},
	}
}

func CategoryPipeline() *filter.Pipeline {
	return filter.NewPipeline(
		filter.Keyword(filter.KeyQuery, "name", "description"),
		filter.Trashed(filter.KeyTrashed),
	)
}

func CategorySorting() filter.Sorting {
	return filter.Sorting{
		Fields:   []string{"id", "name", "created_at"},
		Computed: []string{"posts_count"},
		Default:  filter.Sort{Field: "name", Direction: filter.Asc},
	}
}

func TagPipeline() *filter.Pipeline {
	return filter.NewPipeline(
		filter.Keyword(filter.KeyQuery, "name", "slug"),
	)
}

func TagSorting() filter.Sorting {
	return filter.Sorting{
		Fields:   []string{"id", "name", "created_at"},
		Computed: []string{"posts_count"},
		Default:  filter.Sort{Field: "name", Direction: filter.Asc},
	}
}

// PostLinkCleanup drops the post_tags rows of purged posts.
func PostLinkCleanup() repository.PurgeHook {
	return orphanLinks("post_id", "posts")
}

// TagLinkCleanup drops the post_tags rows of deleted tags, so tag filters and
// counts stop matching them.
func TagLinkCleanup() repository.PurgeHook {
	return orphanLinks("tag_id", "tags")
}

// orphanLinks deletes the join rows among ids whose owner row is gone. Ids
// that were not removed keep their links.
func orphanLinks(column, table string) repository.PurgeHook {
	return func(ctx context.Context, tx bun.Tx, ids []int64) error {
		_, err := tx.ExecContext(ctx,
			"DELETE FROM post_tags WHERE ? IN (?) AND NOT EXISTS (SELECT 1 FROM ? WHERE ?.id = post_tags.?)",
			bun.Ident(column), bun.In(ids), bun.Ident(table), bun.Ident(table), bun.Ident(column),
		)
		return err
	}
}

// withLinks fills the navigation links of res. Links keep every accepted
// parameter of the request and only change the page.
func withLinks[T any](res *repository.Result[T], basePath string, query url.Values) *repository.Result[T] {
	link := func(page int) string {
		v := url.Values{}
		for k, vals := range query {
			v[k] = vals
		}
		v.Set("page", strconv.Itoa(page))
		return basePath + "?" + v.Encode()
	}

	res.Links = repository.Links{
		First: link(1),
		Last:  link(res.LastPage),
	}
	if res.CurrentPage > 1 {
		res.Links.Prev = link(min(res.CurrentPage-1, res.LastPage))
	}
	if res.HasMore() {
		res.Links.Next = link(res.CurrentPage + 1)
	}
	return res
}
