package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"time"

	"github.com/goliatone/go-content-repository/event"
	"github.com/goliatone/go-content-repository/filter"
	"github.com/goliatone/go-content-repository/model"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"go.uber.org/zap"
)

var _ Repository[model.Post] = (*Store[model.Post])(nil)

// Options configures a Store. Zero values fall back to defaults: the
// namespace is derived from the record type, paging uses
// filter.DefaultPaging and sorting falls back to id ascending.
type Options struct {
	Namespace string
	Pipeline  *filter.Pipeline
	Sorting   filter.Sorting
	Paging    filter.Paging
	Publisher event.Publisher
	Logger    *zap.Logger
	// OnPurge runs in the transaction of every statement that removes rows
	// for good, after the statement.
	OnPurge PurgeHook
}

// PurgeHook cleans up rows that reference records removed from the table.
// ids are the requested ids, not only the ones that were removed.
type PurgeHook func(ctx context.Context, tx bun.Tx, ids []int64) error

// Store is the bun backed Repository for record type T.
type Store[T any] struct {
	db        *bun.DB
	namespace string
	pipeline  *filter.Pipeline
	sorting   filter.Sorting
	paging    filter.Paging
	publisher event.Publisher
	logger    *zap.Logger
	onPurge   PurgeHook

	columns    map[string]struct{}
	softDelete string
	lockRows   bool
}

// NewStore builds a store for T. Whether T supports soft delete is decided
// here, once: T must implement model.SoftDeletable and carry a bun
// soft_delete column.
func NewStore[T any](db *bun.DB, opts Options) *Store[T] {
	if opts.Namespace == "" {
		opts.Namespace = NamespaceOf[T]()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if len(opts.Paging.Allowed) == 0 && opts.Paging.Default == 0 {
		opts.Paging = filter.DefaultPaging()
	}
	if opts.Sorting.Default.Field == "" {
		opts.Sorting.Default = filter.Sort{Field: "id", Direction: filter.Asc}
	}

	table := db.Table(reflect.TypeOf((*T)(nil)).Elem())
	columns := make(map[string]struct{}, len(table.FieldMap))
	for name := range table.FieldMap {
		columns[name] = struct{}{}
	}

	s := &Store[T]{
		db:        db,
		namespace: opts.Namespace,
		pipeline:  opts.Pipeline,
		sorting:   opts.Sorting,
		paging:    opts.Paging,
		publisher: opts.Publisher,
		logger:    opts.Logger.With(zap.String("namespace", opts.Namespace)),
		onPurge:   opts.OnPurge,
		columns:   columns,
		lockRows:  db.Dialect().Name() != dialect.SQLite,
	}
	if _, ok := any(new(T)).(model.SoftDeletable); ok && table.SoftDeleteField != nil {
		s.softDelete = table.SoftDeleteField.Name
	}
	return s
}

func (s *Store[T]) Namespace() string {
	return s.namespace
}

// SoftDeletes reports whether RestoreMany and ForceDeleteMany are available.
func (s *Store[T]) SoftDeletes() bool {
	return s.softDelete != ""
}

func (s *Store[T]) Find(ctx context.Context, id int64, relations ...string) (*T, error) {
	return s.find(ctx, "Find", "id", id, relations)
}

func (s *Store[T]) FindBy(ctx context.Context, column string, value any, relations ...string) (*T, error) {
	if err := s.checkColumns(column); err != nil {
		return nil, s.wrap("FindBy", err)
	}
	return s.find(ctx, "FindBy", column, value, relations)
}

func (s *Store[T]) find(ctx context.Context, op, column string, value any, relations []string) (*T, error) {
	record := new(T)
	q := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.? = ?", bun.Ident(column), value)
	for _, rel := range relations {
		q = q.Relation(rel)
	}
	if err := q.Limit(1).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, s.wrap(op, err)
	}
	return record, nil
}

// Paginate runs the base query (columns, relations, scopes) through the
// pipeline, counts the matches and loads the requested page in the resolved
// sort order.
func (s *Store[T]) Paginate(ctx context.Context, params ListParams) (*Result[T], error) {
	if err := s.checkColumns(params.Columns...); err != nil {
		return nil, s.wrap("Paginate", err)
	}
	page := s.paging.Resolve(params.Page)

	var records []*T
	q := s.db.NewSelect().Model(&records)
	if len(params.Columns) > 0 {
		q = q.Column(withID(params.Columns)...)
	}
	for _, rel := range params.Relations {
		q = q.Relation(rel)
	}
	for _, scope := range params.Scopes {
		if scope != nil {
			q = scope(q)
		}
	}
	q = s.pipeline.Apply(q, params.Filter)

	total, err := q.Count(ctx)
	if err != nil {
		return nil, s.wrap("Paginate", err)
	}

	if params.Sort.Field != "" && !s.sorting.Allows(params.Sort.Field) {
		s.logger.Debug("sort field not allowed, using default",
			zap.String("field", params.Sort.Field),
			zap.String("default", s.sorting.Default.Field),
		)
	}
	q = s.sorting.Apply(q, params.Sort)

	if total > page.Offset() {
		if err := q.Limit(page.Size).Offset(page.Offset()).Scan(ctx); err != nil {
			return nil, s.wrap("Paginate", err)
		}
	}
	return NewResult(records, total, page), nil
}

func (s *Store[T]) Create(ctx context.Context, record *T) (*T, error) {
	if record == nil {
		return nil, s.wrap("Create", errors.New("nil record"))
	}
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().Model(record).Exec(ctx)
		return err
	})
	if err != nil {
		return nil, s.wrap("Create", err)
	}
	s.publish(ctx)
	return record, nil
}

// Update sets attrs on the visible record with id.
func (s *Store[T]) Update(ctx context.Context, id int64, attrs map[string]any) (bool, error) {
	if len(attrs) == 0 {
		return false, nil
	}
	cols := make([]string, 0, len(attrs))
	for col := range attrs {
		cols = append(cols, col)
	}
	slices.Sort(cols)
	if slices.Contains(cols, "id") {
		return false, s.wrap("Update", fmt.Errorf("%w: id is read-only", ErrUnknownColumn))
	}
	if err := s.checkColumns(cols...); err != nil {
		return false, s.wrap("Update", err)
	}

	var affected int64
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		q := tx.NewUpdate().Model(new(T)).Where("? = ?", bun.Ident("id"), id)
		for _, col := range cols {
			q = q.Set("? = ?", bun.Ident(col), attrs[col])
		}
		q = s.touch(q, attrs)
		res, err := q.Exec(ctx)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return false, s.wrap("Update", err)
	}
	if affected > 0 {
		s.publish(ctx)
	}
	return affected > 0, nil
}

func (s *Store[T]) Delete(ctx context.Context, id int64) (int, error) {
	return s.bulk(ctx, "Delete", []int64{id}, s.deleteQuery)
}

// DeleteMany soft deletes the visible records among ids, or removes them
// when T is not soft deletable.
func (s *Store[T]) DeleteMany(ctx context.Context, ids []int64) (int, error) {
	return s.bulk(ctx, "DeleteMany", ids, s.deleteQuery)
}

func (s *Store[T]) deleteQuery(ctx context.Context, tx bun.Tx, ids []int64) (sql.Result, error) {
	res, err := tx.NewDelete().
		Model(new(T)).
		Where("? IN (?)", bun.Ident("id"), bun.In(ids)).
		Exec(ctx)
	if err != nil || s.SoftDeletes() {
		return res, err
	}
	return res, s.purged(ctx, tx, ids)
}

func (s *Store[T]) purged(ctx context.Context, tx bun.Tx, ids []int64) error {
	if s.onPurge == nil {
		return nil
	}
	return s.onPurge(ctx, tx, ids)
}

// RestoreMany clears deleted_at on the trashed records among ids.
func (s *Store[T]) RestoreMany(ctx context.Context, ids []int64) (int, error) {
	if !s.SoftDeletes() {
		return 0, s.wrap("RestoreMany", ErrNotSoftDeletable)
	}
	return s.bulk(ctx, "RestoreMany", ids, func(ctx context.Context, tx bun.Tx, ids []int64) (sql.Result, error) {
		q := tx.NewUpdate().
			Model(new(T)).
			Set("? = NULL", bun.Ident(s.softDelete)).
			WhereDeleted().
			Where("? IN (?)", bun.Ident("id"), bun.In(ids))
		return s.touch(q, nil).Exec(ctx)
	})
}

// ForceDeleteMany permanently removes the trashed records among ids. Live
// records must be soft deleted first.
func (s *Store[T]) ForceDeleteMany(ctx context.Context, ids []int64) (int, error) {
	if !s.SoftDeletes() {
		return 0, s.wrap("ForceDeleteMany", ErrNotSoftDeletable)
	}
	return s.bulk(ctx, "ForceDeleteMany", ids, func(ctx context.Context, tx bun.Tx, ids []int64) (sql.Result, error) {
		res, err := tx.NewDelete().
			Model(new(T)).
			WhereDeleted().
			Where("? IN (?)", bun.Ident("id"), bun.In(ids)).
			ForceDelete().
			Exec(ctx)
		if err != nil {
			return res, err
		}
		return res, s.purged(ctx, tx, ids)
	})
}

func (s *Store[T]) Lock(ctx context.Context, id int64, fn LockFunc[T]) (*T, error) {
	var (
		record  *T
		changed bool
		fnErr   error
	)
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		rec := new(T)
		q := tx.NewSelect().Model(rec).Where("?TableAlias.id = ?", id)
		if s.lockRows {
			q = q.For("UPDATE")
		}
		if err := q.Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}
		record = rec

		cols, err := fn(rec)
		if err != nil {
			fnErr = err
			return err
		}
		if len(cols) == 0 {
			return nil
		}
		if _, ok := s.columns["updated_at"]; ok && !slices.Contains(cols, "updated_at") {
			cols = append(cols, "updated_at")
		}
		res, err := tx.NewUpdate().Model(rec).Column(cols...).WherePK().Exec(ctx)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		changed = n > 0
		return err
	})
	if fnErr != nil {
		return nil, fnErr
	}
	if err != nil {
		return nil, s.wrap("Lock", err)
	}
	if changed {
		s.publish(ctx)
	}
	return record, nil
}

type bulkFunc func(ctx context.Context, tx bun.Tx, ids []int64) (sql.Result, error)

// bulk runs a single statement over the normalized ids in a transaction and
// publishes a change after commit when at least one row was affected.
func (s *Store[T]) bulk(ctx context.Context, op string, ids []int64, run bulkFunc) (int, error) {
	ids = UniqueIDs(ids)
	if len(ids) == 0 {
		return 0, nil
	}

	var affected int64
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := run(ctx, tx, ids)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, s.wrap(op, err)
	}
	if affected > 0 {
		s.publish(ctx)
	}
	return int(affected), nil
}

func (s *Store[T]) publish(ctx context.Context) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(ctx, event.Change{Namespace: s.namespace})
}

func (s *Store[T]) touch(q *bun.UpdateQuery, attrs map[string]any) *bun.UpdateQuery {
	if _, ok := s.columns["updated_at"]; !ok {
		return q
	}
	if _, set := attrs["updated_at"]; set {
		return q
	}
	return q.Set("? = ?", bun.Ident("updated_at"), time.Now().UTC())
}

func (s *Store[T]) checkColumns(cols ...string) error {
	for _, col := range cols {
		if _, ok := s.columns[col]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownColumn, col)
		}
	}
	return nil
}

// UniqueIDs drops non-positive ids (how absent entries arrive) and
// duplicates, keeping first-seen order.
func UniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func withID(cols []string) []string {
	if slices.Contains(cols, "id") {
		return cols
	}
	return append([]string{"id"}, cols...)
}
