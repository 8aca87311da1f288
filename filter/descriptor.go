package filter

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Reserved descriptor keys shared by every entity.
const (
	KeyQuery           = "q"
	KeyStatus          = "status"
	KeyCategoryID      = "category_id"
	KeyTagID           = "tag_id"
	KeyUserID          = "user_id"
	KeyPublishedAtFrom = "published_at_from"
	KeyPublishedAtTo   = "published_at_to"
	KeyTrashed         = "trashed"
)

// Descriptor is an immutable, ordered set of filter values keyed by name.
// Values are string, int64, bool or time.Time. Empty values are treated as
// absent by every accessor.
type Descriptor struct {
	keys   []string
	values map[string]any
}

// NewDescriptor builds a descriptor from alternating key/value pairs.
//
//	filter.NewDescriptor("status", "published", "category_id", int64(3))
func NewDescriptor(pairs ...any) Descriptor {
	d := Descriptor{}
	for i := 0; i+1 < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			continue
		}
		d = d.With(key, pairs[i+1])
	}
	return d
}

// With returns a copy of d with key set to value. Setting an existing key
// keeps its original position.
func (d Descriptor) With(key string, value any) Descriptor {
	out := Descriptor{
		keys:   make([]string, 0, len(d.keys)+1),
		values: make(map[string]any, len(d.values)+1),
	}
	out.keys = append(out.keys, d.keys...)
	for k, v := range d.values {
		out.values[k] = v
	}
	if _, exists := out.values[key]; !exists {
		out.keys = append(out.keys, key)
	}
	out.values[key] = value
	return out
}

// Without returns a copy of d with the given keys removed.
func (d Descriptor) Without(keys ...string) Descriptor {
	drop := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		drop[k] = struct{}{}
	}
	out := Descriptor{values: make(map[string]any, len(d.values))}
	for _, k := range d.keys {
		if _, skip := drop[k]; skip {
			continue
		}
		out.keys = append(out.keys, k)
		out.values[k] = d.values[k]
	}
	return out
}

// Keys returns the keys in insertion order.
func (d Descriptor) Keys() []string {
	return append([]string(nil), d.keys...)
}

func (d Descriptor) Len() int {
	return len(d.keys)
}

// Value returns the raw value stored under key. Empty values report false.
func (d Descriptor) Value(key string) (any, bool) {
	v, ok := d.values[key]
	if !ok || isEmpty(v) {
		return nil, false
	}
	return v, true
}

// Has reports whether key carries a non-empty value.
func (d Descriptor) Has(key string) bool {
	_, ok := d.Value(key)
	return ok
}

func (d Descriptor) String(key string) (string, bool) {
	v, ok := d.Value(key)
	if !ok {
		return "", false
	}
	switch s := v.(type) {
	case string:
		return s, true
	case fmt.Stringer:
		return s.String(), true
	default:
		return fmt.Sprint(v), true
	}
}

func (d Descriptor) Int(key string) (int64, bool) {
	v, ok := d.Value(key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	default:
		return 0, false
	}
}

func (d Descriptor) Bool(key string) (bool, bool) {
	v, ok := d.Value(key)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

func (d Descriptor) Time(key string) (time.Time, bool) {
	v, ok := d.Value(key)
	if !ok {
		return time.Time{}, false
	}
	t, ok := v.(time.Time)
	return t, ok
}

// CacheKey renders the descriptor in a canonical, key-sorted form so that two
// descriptors holding the same values produce the same cache key regardless
// of insertion order. Values are quoted so a keyword cannot forge the
// separators of another key.
func (d Descriptor) CacheKey() string {
	keys := make([]string, 0, len(d.keys))
	for _, k := range d.keys {
		if d.Has(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		v := d.values[k]
		typ := fmt.Sprintf("%T", v)
		if t, ok := v.(time.Time); ok {
			v = t.UTC().Format(time.RFC3339Nano)
		}
		parts[i] = k + "=" + typ + ":" + strconv.Quote(fmt.Sprint(v))
	}
	return "descriptor{" + strings.Join(parts, ",") + "}"
}

func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case time.Time:
		return x.IsZero()
	default:
		return false
	}
}
