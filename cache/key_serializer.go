package cache

import (
	"encoding"
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// KeySeparator defines the delimiter used between cache key segments.
const KeySeparator = "::"

// CacheKeyer is implemented by values that know their own canonical key
// form, typically types whose state lives in unexported fields.
type CacheKeyer interface {
	CacheKey() string
}

// defaultKeySerializer renders arguments by reflection. CacheKeyer and
// encoding.TextMarshaler values render themselves, containers recurse, maps
// are sorted by rendered key and anything else falls back to JSON.
type defaultKeySerializer struct{}

// NewDefaultKeySerializer creates a new instance of the default key serializer.
func NewDefaultKeySerializer() KeySerializer {
	return &defaultKeySerializer{}
}

// SerializeKey joins method and the rendered args with KeySeparator.
func (s *defaultKeySerializer) SerializeKey(method string, args ...any) string {
	if len(args) == 0 {
		return method
	}
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, method)
	for _, arg := range args {
		parts = append(parts, s.render(arg))
	}
	return strings.Join(parts, KeySeparator)
}

func (s *defaultKeySerializer) render(v any) string {
	switch tv := v.(type) {
	case nil:
		return "nil"
	case CacheKeyer:
		return tv.CacheKey()
	case encoding.TextMarshaler:
		if txt, err := tv.MarshalText(); err == nil {
			return string(txt)
		}
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Func:
		// Code pointer: stable for one func value, shared by closures of the
		// same literal.
		return fmt.Sprintf("func:%p", v)
	case reflect.Chan:
		return fmt.Sprintf("chan:%p", v)
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return "nil"
		}
		return s.render(rv.Elem().Interface())
	case reflect.Slice:
		if rv.IsNil() {
			return "slice:nil"
		}
		return "slice" + s.renderList(rv)
	case reflect.Array:
		return "array" + s.renderList(rv)
	case reflect.Map:
		if rv.IsNil() {
			return "map:nil"
		}
		return s.renderMap(rv)
	case reflect.Struct:
		return s.renderStruct(rv)
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return fmt.Sprintf("%v", v)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return "fallback:" + rv.Type().String()
	}
	return "json:" + string(data)
}

// renderList renders the elements of a slice or array as [n]:{a,b}.
func (s *defaultKeySerializer) renderList(rv reflect.Value) string {
	parts := make([]string, rv.Len())
	for i := range parts {
		parts[i] = s.render(rv.Index(i).Interface())
	}
	return fmt.Sprintf("[%d]:{%s}", len(parts), strings.Join(parts, ","))
}

func (s *defaultKeySerializer) renderMap(rv reflect.Value) string {
	pairs := make([]string, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		pairs = append(pairs, s.render(iter.Key().Interface())+"="+s.render(iter.Value().Interface()))
	}
	slices.Sort(pairs)
	return fmt.Sprintf("map[%d]:{%s}", len(pairs), strings.Join(pairs, ","))
}

// renderStruct renders exported fields only.
func (s *defaultKeySerializer) renderStruct(rv reflect.Value) string {
	rt := rv.Type()
	parts := make([]string, 0, rt.NumField())
	for i := range rt.NumField() {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		parts = append(parts, field.Name+":"+s.render(rv.Field(i).Interface()))
	}
	return "struct:{" + strings.Join(parts, ",") + "}"
}

// hashedKeySerializer keeps the method segment readable and replaces the
// argument segments with their xxhash digest, bounding key length for
// descriptors with many values.
type hashedKeySerializer struct {
	base KeySerializer
}

// NewHashedKeySerializer wraps base. Keys take the form
// method::<16 hex digits>, so prefix invalidation on the method (or any
// namespace embedded in it) keeps working.
func NewHashedKeySerializer(base KeySerializer) KeySerializer {
	if base == nil {
		base = NewDefaultKeySerializer()
	}
	return &hashedKeySerializer{base: base}
}

func (s *hashedKeySerializer) SerializeKey(method string, args ...any) string {
	if len(args) == 0 {
		return method
	}
	raw := s.base.SerializeKey("", args...)
	return method + KeySeparator + fmt.Sprintf("%016x", xxhash.Sum64String(raw))
}

// NamespacedMethod joins a namespace and a method name into the method
// segment of a key.
func NamespacedMethod(namespace, method string) string {
	if namespace == "" {
		return method
	}
	return namespace + KeySeparator + method
}
