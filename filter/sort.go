package filter

import (
	"slices"
	"strings"

	"github.com/uptrace/bun"
)

type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// ParseDirection normalizes s; ok is false for anything but asc/desc.
func ParseDirection(s string) (Direction, bool) {
	switch Direction(strings.ToLower(strings.TrimSpace(s))) {
	case Asc:
		return Asc, true
	case Desc:
		return Desc, true
	default:
		return "", false
	}
}

// Sort orders a listing by one field.
type Sort struct {
	Field     string
	Direction Direction
}

func (s Sort) CacheKey() string {
	return "sort{" + s.Field + " " + string(s.Direction) + "}"
}

// Sorting is the allow-list of sortable fields for one entity.
type Sorting struct {
	// Fields are table columns, qualified with the table alias.
	Fields []string
	// Computed are select-list aliases (e.g. posts_count), left unqualified.
	Computed []string
	Default  Sort
}

// Allows reports whether field may be sorted on.
func (s Sorting) Allows(field string) bool {
	return slices.Contains(s.Fields, field) || slices.Contains(s.Computed, field)
}

// Resolve returns in when its field is allow-listed, falling back to the
// default sort otherwise. A named field without a direction sorts ascending;
// an unrecognized direction takes the default direction.
func (s Sorting) Resolve(in Sort) Sort {
	out := in
	named := s.Allows(out.Field)
	if !named {
		out.Field = s.Default.Field
	}
	if d, ok := ParseDirection(string(out.Direction)); ok {
		out.Direction = d
	} else if named && strings.TrimSpace(string(in.Direction)) == "" {
		out.Direction = Asc
	} else {
		out.Direction = s.Default.Direction
	}
	if out.Direction == "" {
		out.Direction = Asc
	}
	return out
}

// Apply orders q by the resolved sort followed by the primary key, so pages
// stay stable when the sort column has ties.
func (s Sorting) Apply(q *bun.SelectQuery, in Sort) *bun.SelectQuery {
	resolved := s.Resolve(in)
	dir := "ASC"
	if resolved.Direction == Desc {
		dir = "DESC"
	}

	switch {
	case resolved.Field == "":
	case slices.Contains(s.Computed, resolved.Field):
		q = q.OrderExpr("? "+dir, bun.Ident(resolved.Field))
	default:
		q = q.OrderExpr("?TableAlias.? "+dir, bun.Ident(resolved.Field))
	}
	if resolved.Field != "id" {
		q = q.OrderExpr("?TableAlias.id " + dir)
	}
	return q
}
