// Package model holds the persisted records of the content store.
package model

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

// Post statuses.
const (
	StatusDraft     = "draft"
	StatusScheduled = "scheduled"
	StatusPublished = "published"
)

// Statuses lists every valid post status.
var Statuses = []string{StatusDraft, StatusScheduled, StatusPublished}

// SoftDeletable is implemented by records that are deleted logically through
// a nullable deleted_at column tagged with bun's soft_delete option.
type SoftDeletable interface {
	SoftDeletes()
}

type Post struct {
	bun.BaseModel `bun:"table:posts,alias:post"`

	ID          int64      `bun:",pk,autoincrement" json:"id"`
	Title       string     `bun:",notnull" json:"title"`
	Slug        string     `bun:",notnull,unique" json:"slug"`
	Excerpt     string     `bun:",nullzero" json:"excerpt,omitempty"`
	Body        string     `bun:",nullzero" json:"body,omitempty"`
	Status      string     `bun:",notnull" json:"status"`
	CategoryID  int64      `bun:",nullzero" json:"category_id,omitempty"`
	Category    *Category  `bun:"rel:belongs-to,join:category_id=id" json:"category,omitempty"`
	UserID      int64      `bun:",nullzero" json:"user_id,omitempty"`
	Tags        []*Tag     `bun:"m2m:post_tags,join:Post=Tag" json:"tags,omitempty"`
	PublishedAt *time.Time `bun:",nullzero" json:"published_at,omitempty"`
	CreatedAt   time.Time  `bun:",nullzero,notnull" json:"created_at"`
	UpdatedAt   time.Time  `bun:",nullzero,notnull" json:"updated_at"`
	DeletedAt   time.Time  `bun:",soft_delete,nullzero" json:"deleted_at,omitzero"`
}

func (*Post) SoftDeletes() {}

// IsPublished reports whether the post is visible on the public site at now.
func (p *Post) IsPublished(now time.Time) bool {
	return p.Status == StatusPublished && p.PublishedAt != nil && !p.PublishedAt.After(now)
}

type Category struct {
	bun.BaseModel `bun:"table:categories,alias:category"`

	ID          int64     `bun:",pk,autoincrement" json:"id"`
	Name        string    `bun:",notnull" json:"name"`
	Slug        string    `bun:",notnull,unique" json:"slug"`
	Description string    `bun:",nullzero" json:"description,omitempty"`
	PostsCount  int       `bun:",scanonly" json:"posts_count"`
	CreatedAt   time.Time `bun:",nullzero,notnull" json:"created_at"`
	UpdatedAt   time.Time `bun:",nullzero,notnull" json:"updated_at"`
	DeletedAt   time.Time `bun:",soft_delete,nullzero" json:"deleted_at,omitzero"`
}

func (*Category) SoftDeletes() {}

// Tag is hard deleted; it does not implement SoftDeletable.
type Tag struct {
	bun.BaseModel `bun:"table:tags,alias:tag"`

	ID         int64     `bun:",pk,autoincrement" json:"id"`
	Name       string    `bun:",notnull" json:"name"`
	Slug       string    `bun:",notnull,unique" json:"slug"`
	PostsCount int       `bun:",scanonly" json:"posts_count"`
	CreatedAt  time.Time `bun:",nullzero,notnull" json:"created_at"`
	UpdatedAt  time.Time `bun:",nullzero,notnull" json:"updated_at"`
}

// PostTag is the m2m join between posts and tags.
type PostTag struct {
	bun.BaseModel `bun:"table:post_tags,alias:pt"`

	PostID int64 `bun:",pk"`
	Post   *Post `bun:"rel:belongs-to,join:post_id=id"`
	TagID  int64 `bun:",pk"`
	Tag    *Tag  `bun:"rel:belongs-to,join:tag_id=id"`
}

var (
	_ bun.BeforeAppendModelHook = (*Post)(nil)
	_ bun.BeforeAppendModelHook = (*Category)(nil)
	_ bun.BeforeAppendModelHook = (*Tag)(nil)
)

func (p *Post) BeforeAppendModel(_ context.Context, query bun.Query) error {
	touch(query, &p.CreatedAt, &p.UpdatedAt)
	return nil
}

func (c *Category) BeforeAppendModel(_ context.Context, query bun.Query) error {
	touch(query, &c.CreatedAt, &c.UpdatedAt)
	return nil
}

func (t *Tag) BeforeAppendModel(_ context.Context, query bun.Query) error {
	touch(query, &t.CreatedAt, &t.UpdatedAt)
	return nil
}

// touch stamps inserts with both timestamps (keeping explicit values) and
// updates with a fresh updated_at.
func touch(query bun.Query, created, updated *time.Time) {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if created.IsZero() {
			*created = now
		}
		if updated.IsZero() {
			*updated = *created
		}
	case *bun.UpdateQuery:
		*updated = now
	}
}

// Register registers the join models bun needs to resolve m2m relations.
// It must run before the first query touching Post.Tags.
func Register(db *bun.DB) {
	db.RegisterModel((*PostTag)(nil))
}

// CreateSchema creates every content table that does not exist yet.
func CreateSchema(ctx context.Context, db bun.IDB) error {
	models := []any{
		(*Category)(nil),
		(*Tag)(nil),
		(*Post)(nil),
		(*PostTag)(nil),
	}
	for _, m := range models {
		if _, err := db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}
