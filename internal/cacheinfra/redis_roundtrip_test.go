package cacheinfra_test

import (
	"context"
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goliatone/go-content-repository/filter"
	"github.com/goliatone/go-content-repository/internal/cacheinfra"
	"github.com/goliatone/go-content-repository/model"
	"github.com/goliatone/go-content-repository/pkg/testsupport"
	"github.com/goliatone/go-content-repository/repository"
	"github.com/redis/go-redis/v9"
)

func TestRedisService_PostPageRoundTrip(t *testing.T) {
	prev := time.Local
	time.Local = time.FixedZone("PST", -8*3600)
	t.Cleanup(func() { time.Local = prev })

	db, _ := testsupport.NewSeededDB(t)
	store := repository.NewStore[model.Post](db, repository.Options{})
	fetch := func(ctx context.Context) (*repository.Result[model.Post], error) {
		return store.Paginate(ctx, repository.ListParams{
			Relations: []string{"Category", "Tags"},
			Sort:      filter.Sort{Field: "id", Direction: filter.Asc},
			Page:      filter.Page{Number: 1, Size: 10},
		})
	}

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	service, err := cacheinfra.NewRedisService(client, cacheinfra.DefaultRedisConfig(), time.Minute, nil)
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	ctx := cacheinfra.WithTags(context.Background(), "post", "category", "tag")
	fresh, err := service.GetOrFetch(ctx, "post::Paginate::1", fetch)
	if err != nil {
		t.Fatalf("GetOrFetch() failed: %v", err)
	}
	cached, err := service.GetOrFetch(ctx, "post::Paginate::1", func(ctx context.Context) (*repository.Result[model.Post], error) {
		t.Fatal("expected the page to come from redis")
		return nil, nil
	})
	if err != nil {
		t.Fatalf("GetOrFetch() failed: %v", err)
	}

	want := fresh.(*repository.Result[model.Post])
	got := cached.(*repository.Result[model.Post])
	if len(got.Records) != 4 {
		t.Fatalf("expected 4 posts, got %d", len(got.Records))
	}
	first := got.Records[0]
	if first.Category == nil || first.Category.Slug != "go" || len(first.Tags) != 1 || first.Tags[0].Slug != "go" {
		t.Errorf("expected relations on the cached post, got %+v", first)
	}

	if !reflect.DeepEqual(got, want) {
		t.Errorf("cached page differs from the store page:\n got %+v\nwant %+v", got.Records[0], want.Records[0])
	}

	wantJSON, err := json.Marshal(want)
	if err != nil {
		t.Fatalf("marshal fresh page: %v", err)
	}
	gotJSON, err := json.Marshal(got)
	if err != nil {
		t.Fatalf("marshal cached page: %v", err)
	}
	if string(gotJSON) != string(wantJSON) {
		t.Errorf("cached JSON differs:\n got %s\nwant %s", gotJSON, wantJSON)
	}
}
