package filter

import (
	"strings"

	"github.com/uptrace/bun"
)

// Stage narrows a select query using the descriptor keys it owns. A stage
// whose keys are absent returns the query untouched.
type Stage interface {
	Apply(q *bun.SelectQuery, d Descriptor) *bun.SelectQuery
}

// StageFunc adapts a plain function to the Stage interface.
type StageFunc func(q *bun.SelectQuery, d Descriptor) *bun.SelectQuery

func (f StageFunc) Apply(q *bun.SelectQuery, d Descriptor) *bun.SelectQuery {
	return f(q, d)
}

// Trashed visibility modes.
const (
	TrashedWith = "with"
	TrashedOnly = "only"
)

// TrashedModes lists the accepted non-default values for the trashed key.
var TrashedModes = []string{TrashedWith, TrashedOnly}

type keywordStage struct {
	key     string
	columns []string
}

// Keyword matches a case-insensitive substring against each column, OR-ing
// the columns together.
func Keyword(key string, columns ...string) Stage {
	return keywordStage{key: key, columns: append([]string(nil), columns...)}
}

func (s keywordStage) Apply(q *bun.SelectQuery, d Descriptor) *bun.SelectQuery {
	term, ok := d.String(s.key)
	if !ok || len(s.columns) == 0 {
		return q
	}
	term = strings.TrimSpace(term)
	if term == "" {
		return q
	}

	pattern := "%" + escapeLike(strings.ToLower(term)) + "%"
	return q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
		for _, col := range s.columns {
			q = q.WhereOr(`LOWER(?TableAlias.?) LIKE ? ESCAPE '\'`, bun.Ident(col), pattern)
		}
		return q
	})
}

type equalsStage struct {
	key    string
	column string
}

// Equals matches column exactly against the descriptor value.
func Equals(key, column string) Stage {
	return equalsStage{key: key, column: column}
}

func (s equalsStage) Apply(q *bun.SelectQuery, d Descriptor) *bun.SelectQuery {
	v, ok := d.Value(s.key)
	if !ok {
		return q
	}
	return q.Where("?TableAlias.? = ?", bun.Ident(s.column), v)
}

type rangeStage struct {
	fromKey string
	toKey   string
	column  string
}

// Range applies inclusive lower and upper bounds; either may be omitted.
func Range(fromKey, toKey, column string) Stage {
	return rangeStage{fromKey: fromKey, toKey: toKey, column: column}
}

func (s rangeStage) Apply(q *bun.SelectQuery, d Descriptor) *bun.SelectQuery {
	if from, ok := d.Value(s.fromKey); ok {
		q = q.Where("?TableAlias.? >= ?", bun.Ident(s.column), from)
	}
	if to, ok := d.Value(s.toKey); ok {
		q = q.Where("?TableAlias.? <= ?", bun.Ident(s.column), to)
	}
	return q
}

type membershipStage struct {
	key          string
	table        string
	ownerColumn  string
	memberColumn string
}

// Membership keeps rows that own a join-table entry whose memberColumn equals
// the descriptor value, e.g. posts carrying a tag through post_tags.
func Membership(key, table, ownerColumn, memberColumn string) Stage {
	return membershipStage{key: key, table: table, ownerColumn: ownerColumn, memberColumn: memberColumn}
}

func (s membershipStage) Apply(q *bun.SelectQuery, d Descriptor) *bun.SelectQuery {
	v, ok := d.Value(s.key)
	if !ok {
		return q
	}
	return q.Where(
		"EXISTS (SELECT 1 FROM ? AS m WHERE m.? = ?TableAlias.id AND m.? = ?)",
		bun.Ident(s.table), bun.Ident(s.ownerColumn), bun.Ident(s.memberColumn), v,
	)
}

type trashedStage struct {
	key string
}

// Trashed switches soft-delete visibility: the default hides deleted rows,
// "with" shows every row and "only" shows deleted rows alone. Pipelines always
// run it after every other stage.
func Trashed(key string) Stage {
	return trashedStage{key: key}
}

func (s trashedStage) Apply(q *bun.SelectQuery, d Descriptor) *bun.SelectQuery {
	mode, _ := d.String(s.key)
	switch mode {
	case TrashedWith:
		return q.WhereAllWithDeleted()
	case TrashedOnly:
		return q.WhereDeleted()
	default:
		return q
	}
}

func (trashedStage) visibility() {}

// visibilityStage marks stages that change which rows are visible at all.
type visibilityStage interface {
	visibility()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
