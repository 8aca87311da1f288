package cache

import (
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"
)

func joinWithSeparator(parts ...string) string {
	return strings.Join(parts, KeySeparator)
}

type pageKey struct {
	number int
}

func (p pageKey) CacheKey() string { return fmt.Sprintf("page{%d}", p.number) }

func TestDefaultKeySerializer(t *testing.T) {
	serializer := NewDefaultKeySerializer()
	published := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	type listing struct {
		Status string
		Limit  int
		secret string
	}

	tests := []struct {
		name   string
		method string
		args   []any
		want   string
	}{
		{name: "no args", method: "post::Paginate", args: []any{}, want: "post::Paginate"},
		{name: "basic types", method: "Find", args: []any{int64(42), "slug", true, 1.5}, want: joinWithSeparator("Find", "42", "slug", "true", "1.5")},
		{name: "nil", method: "Find", args: []any{nil, (*int)(nil)}, want: joinWithSeparator("Find", "nil", "nil")},
		{name: "nil slice and map", method: "Find", args: []any{([]string)(nil), (map[string]int)(nil)}, want: joinWithSeparator("Find", "slice:nil", "map:nil")},
		{name: "relations", method: "Find", args: []any{[]string{"Category", "Tags"}}, want: joinWithSeparator("Find", "slice[2]:{Category,Tags}")},
		{name: "empty slice", method: "Find", args: []any{[]string{}}, want: joinWithSeparator("Find", "slice[0]:{}")},
		{name: "nested slice", method: "Find", args: []any{[][]int{{1, 2}, {3}}}, want: joinWithSeparator("Find", "slice[2]:{slice[2]:{1,2},slice[1]:{3}}")},
		{name: "array", method: "Find", args: []any{[2]int{1, 2}}, want: joinWithSeparator("Find", "array[2]:{1,2}")},
		{name: "map sorted", method: "Find", args: []any{map[string]int{"tag_id": 3, "category_id": 1}}, want: joinWithSeparator("Find", "map[2]:{category_id=1,tag_id=3}")},
		{name: "struct exported fields only", method: "Find", args: []any{listing{Status: "draft", Limit: 10, secret: "x"}}, want: joinWithSeparator("Find", "struct:{Status:draft,Limit:10}")},
		{name: "pointer dereferenced", method: "Find", args: []any{&listing{Status: "published"}}, want: joinWithSeparator("Find", "struct:{Status:published,Limit:0}")},
		{name: "cache keyer", method: "Find", args: []any{pageKey{number: 2}}, want: joinWithSeparator("Find", "page{2}")},
		{name: "time", method: "Find", args: []any{published}, want: joinWithSeparator("Find", "2024-03-01T12:00:00Z")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := serializer.SerializeKey(tt.method, tt.args...)
			if got != tt.want {
				t.Errorf("SerializeKey() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDefaultKeySerializer_Functions(t *testing.T) {
	serializer := NewDefaultKeySerializer()
	scope := func() {}

	key1 := serializer.SerializeKey("Paginate", scope)
	key2 := serializer.SerializeKey("Paginate", scope)
	if key1 != key2 {
		t.Errorf("function serialization should be stable: %v != %v", key1, key2)
	}
	if !strings.HasPrefix(key1, joinWithSeparator("Paginate", "func:")) {
		t.Errorf("expected func: prefix, got %v", key1)
	}

	ch := make(chan int)
	if key := serializer.SerializeKey("Paginate", ch); !strings.HasPrefix(key, joinWithSeparator("Paginate", "chan:")) {
		t.Errorf("expected chan: prefix, got %v", key)
	}
}

func TestDefaultKeySerializer_Stability(t *testing.T) {
	serializer := NewDefaultKeySerializer()
	args := []any{1, "hello", []int{1, 2, 3}, map[string]int{"a": 1, "b": 2, "c": 3}}

	want := serializer.SerializeKey("Paginate", args...)
	for range 20 {
		if got := serializer.SerializeKey("Paginate", args...); got != want {
			t.Fatalf("key serialization should be stable: %v != %v", got, want)
		}
	}
}

func TestHashedKeySerializer(t *testing.T) {
	serializer := NewHashedKeySerializer(nil)
	method := NamespacedMethod("post", "Paginate")

	key := serializer.SerializeKey(method, "admin", map[string]any{"status": "draft"}, pageKey{number: 1})
	if !regexp.MustCompile(`^post::Paginate::[0-9a-f]{16}$`).MatchString(key) {
		t.Fatalf("unexpected key shape %q", key)
	}

	if again := serializer.SerializeKey(method, "admin", map[string]any{"status": "draft"}, pageKey{number: 1}); again != key {
		t.Errorf("expected identical args to hash identically: %s != %s", again, key)
	}
	if other := serializer.SerializeKey(method, "admin", map[string]any{"status": "published"}, pageKey{number: 1}); other == key {
		t.Error("expected different args to hash differently")
	}
	if bare := serializer.SerializeKey(method); bare != "post::Paginate" {
		t.Errorf("expected method only without args, got %s", bare)
	}
}

func TestNamespacedMethod(t *testing.T) {
	if got := NamespacedMethod("category", "Find"); got != "category::Find" {
		t.Errorf("got %s", got)
	}
	if got := NamespacedMethod("post", ""); got != "post::" {
		t.Errorf("expected prefix form, got %s", got)
	}
	if got := NamespacedMethod("", "Find"); got != "Find" {
		t.Errorf("got %s", got)
	}
}

func BenchmarkHashedKeySerializer(b *testing.B) {
	serializer := NewHashedKeySerializer(nil)
	args := []any{"admin", map[string]any{"q": "go", "status": "published"}, []string{"Category"}}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		serializer.SerializeKey("post::Paginate", args...)
	}
}
