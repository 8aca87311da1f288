// Package repository owns record-store access for one entity family: point
// lookups, filtered pagination through a filter.Pipeline, and mutations that
// announce themselves on an event bus once committed.
package repository

import (
	"context"

	"github.com/goliatone/go-content-repository/filter"
	gorepo "github.com/goliatone/go-repository-bun"
)

// Repository is the contract query objects and services depend on. Store is
// the bun implementation; repositorycache.CachedRepository decorates it.
type Repository[T any] interface {
	// Namespace is the entity family name used for cache tags and events.
	Namespace() string

	// Find returns nil, nil when no visible record has id.
	Find(ctx context.Context, id int64, relations ...string) (*T, error)
	FindBy(ctx context.Context, column string, value any, relations ...string) (*T, error)
	Paginate(ctx context.Context, params ListParams) (*Result[T], error)

	Create(ctx context.Context, record *T) (*T, error)
	// Update reports whether a visible record with id was changed.
	Update(ctx context.Context, id int64, attrs map[string]any) (bool, error)
	Delete(ctx context.Context, id int64) (int, error)
	DeleteMany(ctx context.Context, ids []int64) (int, error)
	RestoreMany(ctx context.Context, ids []int64) (int, error)
	ForceDeleteMany(ctx context.Context, ids []int64) (int, error)

	// Lock loads id under a row lock inside a transaction and hands it to fn.
	// The columns fn returns are written back before commit. An error from fn
	// rolls the transaction back and is returned unchanged.
	Lock(ctx context.Context, id int64, fn LockFunc[T]) (*T, error)
}

// LockFunc mutates a locked record and returns the columns to persist. No
// columns means nothing changed and no event is published.
type LockFunc[T any] func(record *T) ([]string, error)

// ListParams describes one paginated listing.
type ListParams struct {
	// Name identifies the use case. Cached results are keyed by it, so two
	// listings with different Scopes must not share a Name.
	Name      string
	Filter    filter.Descriptor
	Sort      filter.Sort
	Page      filter.Page
	Columns   []string
	Relations []string
	// Scopes run before the pipeline. They are not part of the cache key.
	Scopes []gorepo.SelectCriteria
}

// Links are the navigation URLs of a page. Query objects fill them in.
type Links struct {
	First string `json:"first"`
	Last  string `json:"last"`
	Prev  string `json:"prev,omitempty"`
	Next  string `json:"next,omitempty"`
}

// Result is one page of a listing. Total is exact for the filter applied.
type Result[T any] struct {
	Records     []*T  `json:"data"`
	Total       int   `json:"total"`
	CurrentPage int   `json:"current_page"`
	PerPage     int   `json:"per_page"`
	LastPage    int   `json:"last_page"`
	From        int   `json:"from"`
	To          int   `json:"to"`
	Links       Links `json:"links"`
}

// NewResult computes the page bounds for records found at page out of total.
func NewResult[T any](records []*T, total int, page filter.Page) *Result[T] {
	if records == nil {
		records = []*T{}
	}
	res := &Result[T]{
		Records:     records,
		Total:       total,
		CurrentPage: page.Number,
		PerPage:     page.Size,
		LastPage:    1,
	}
	if page.Size > 0 && total > 0 {
		res.LastPage = (total + page.Size - 1) / page.Size
	}
	if len(records) > 0 {
		res.From = page.Offset() + 1
		res.To = page.Offset() + len(records)
	}
	return res
}

// HasMore reports whether a page follows this one.
func (r *Result[T]) HasMore() bool {
	return r.CurrentPage < r.LastPage
}
