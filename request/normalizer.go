// Package request turns raw query-string parameters into the typed filter,
// sort and page values query objects consume.
package request

import (
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-content-repository/filter"
	"github.com/goliatone/go-content-repository/model"
)

// Reserved parameters shared by every listing.
const (
	ParamSort      = "sort"
	ParamDirection = "direction"
	ParamPage      = "page"
	ParamPerPage   = "per_page"
)

// Kind is the type a filter parameter is coerced to.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindBool
	KindTime
	KindEnum
)

// Field declares one accepted filter parameter.
type Field struct {
	Key  string
	Kind Kind
	// Enum lists the accepted values of a KindEnum field.
	Enum []string
	// EndOfDay makes a date-only KindTime value cover the whole day, for
	// inclusive upper bounds.
	EndOfDay bool
}

// Request is a normalized listing request.
type Request struct {
	Filter filter.Descriptor
	Sort   filter.Sort
	Page   filter.Page
	// Query holds the accepted parameters in canonical form, without page.
	// Query objects build pagination links from it.
	Query url.Values
}

// Normalizer holds the accepted parameters of one (entity, use case) pair.
type Normalizer struct {
	fields  []Field
	sorting filter.Sorting
	paging  filter.Paging
	loc     *time.Location
}

// New builds a normalizer. A zero paging falls back to filter.DefaultPaging.
func New(sorting filter.Sorting, paging filter.Paging, fields ...Field) *Normalizer {
	if len(paging.Allowed) == 0 && paging.Default == 0 {
		paging = filter.DefaultPaging()
	}
	return &Normalizer{
		fields:  append([]Field(nil), fields...),
		sorting: sorting,
		paging:  paging,
		loc:     time.UTC,
	}
}

// PostFields are the filter parameters of post listings.
func PostFields() []Field {
	return []Field{
		{Key: filter.KeyQuery, Kind: KindString},
		{Key: filter.KeyStatus, Kind: KindEnum, Enum: model.Statuses},
		{Key: filter.KeyCategoryID, Kind: KindInt},
		{Key: filter.KeyTagID, Kind: KindInt},
		{Key: filter.KeyUserID, Kind: KindInt},
		{Key: filter.KeyPublishedAtFrom, Kind: KindTime},
		{Key: filter.KeyPublishedAtTo, Kind: KindTime, EndOfDay: true},
		{Key: filter.KeyTrashed, Kind: KindEnum, Enum: filter.TrashedModes},
	}
}

// CategoryFields are the filter parameters of category listings.
func CategoryFields() []Field {
	return []Field{
		{Key: filter.KeyQuery, Kind: KindString},
		{Key: filter.KeyTrashed, Kind: KindEnum, Enum: filter.TrashedModes},
	}
}

// TagFields are the filter parameters of tag listings.
func TagFields() []Field {
	return []Field{
		{Key: filter.KeyQuery, Kind: KindString},
	}
}

// Normalize is lenient: values that do not coerce are dropped, unknown sort
// fields and page sizes fall back to the defaults.
func (n *Normalizer) Normalize(values url.Values) Request {
	req := Request{Query: url.Values{}}

	for _, f := range n.fields {
		raw := strings.TrimSpace(values.Get(f.Key))
		if raw == "" {
			continue
		}
		v, ok := n.coerce(f, raw)
		if !ok {
			continue
		}
		req.Filter = req.Filter.With(f.Key, v)
		req.Query.Set(f.Key, raw)
	}

	req.Sort = n.sorting.Resolve(filter.Sort{
		Field:     strings.TrimSpace(values.Get(ParamSort)),
		Direction: filter.Direction(values.Get(ParamDirection)),
	})
	if req.Sort.Field != "" {
		req.Query.Set(ParamSort, req.Sort.Field)
		req.Query.Set(ParamDirection, string(req.Sort.Direction))
	}

	req.Page = n.paging.Resolve(filter.Page{
		Number: atoi(values.Get(ParamPage)),
		Size:   atoi(values.Get(ParamPerPage)),
	})
	req.Query.Set(ParamPerPage, strconv.Itoa(req.Page.Size))
	return req
}

func (n *Normalizer) coerce(f Field, raw string) (any, bool) {
	switch f.Kind {
	case KindInt:
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return nil, false
		}
		return id, true
	case KindBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, false
		}
		return b, true
	case KindTime:
		return parseTime(raw, f.EndOfDay, n.loc)
	case KindEnum:
		v := strings.ToLower(raw)
		return v, slices.Contains(f.Enum, v)
	default:
		return raw, true
	}
}

// DateLayout is the date-only form accepted next to RFC 3339.
const DateLayout = "2006-01-02"

func parseTime(raw string, endOfDay bool, loc *time.Location) (any, bool) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), true
	}
	t, err := time.ParseInLocation(DateLayout, raw, loc)
	if err != nil {
		return nil, false
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t.UTC(), true
}

func atoi(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

// ParseIDs coerces a list of raw ids, dropping nil, empty and invalid
// entries. JSON numbers arrive as float64.
func ParseIDs(raw []any) []int64 {
	ids := make([]int64, 0, len(raw))
	for _, r := range raw {
		switch v := r.(type) {
		case float64:
			if v == float64(int64(v)) {
				ids = append(ids, int64(v))
			}
		case int64:
			ids = append(ids, v)
		case int:
			ids = append(ids, int64(v))
		case string:
			if id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
				ids = append(ids, id)
			}
		}
	}
	return ids
}
