// Package testsupport provides in-memory content databases and fixture
// helpers for tests.
package testsupport

import (
	"context"
	_ "embed"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/goliatone/go-content-repository/model"
	"github.com/goliatone/go-content-repository/pkg/database"
	"github.com/uptrace/bun"
)

//go:embed testdata/content.json
var contentFixture []byte

// Content is the seed data set shared by the package tests.
//
//   - posts 1 and 3 are published in category 1 (go), tag go
//   - post 2 is a draft, post 4 is scheduled for 2099, both in category 2
//   - post 5 is published but soft deleted
//   - category 3 is soft deleted
type Content struct {
	Categories []*model.Category `json:"categories"`
	Tags       []*model.Tag      `json:"tags"`
	Posts      []*model.Post     `json:"posts"`
	PostTags   []struct {
		PostID int64 `json:"post_id"`
		TagID  int64 `json:"tag_id"`
	} `json:"post_tags"`
}

// LoadContent decodes the embedded seed data set.
func LoadContent(t testing.TB) Content {
	t.Helper()

	var c Content
	if err := json.Unmarshal(contentFixture, &c); err != nil {
		t.Fatalf("failed to unmarshal content fixture: %v", err)
	}
	return c
}

// NewDB opens an in-memory SQLite database with the content schema and a
// query counter attached. It is closed when the test ends.
func NewDB(t testing.TB) (*bun.DB, *database.QueryCounter) {
	t.Helper()

	db, err := database.Open(database.Config{Driver: database.DriverSQLite, DSN: "file::memory:"}, nil)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	t.Cleanup(func() { _ = db.Close() })

	if err := model.CreateSchema(context.Background(), db); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	counter := &database.QueryCounter{}
	db.AddQueryHook(counter)
	return db, counter
}

// NewSeededDB is NewDB plus the embedded content. The counter is reset after
// seeding.
func NewSeededDB(t testing.TB) (*bun.DB, *database.QueryCounter) {
	t.Helper()

	db, counter := NewDB(t)
	Seed(t, db, LoadContent(t))
	counter.Reset()
	return db, counter
}

// Seed inserts c into db.
func Seed(t testing.TB, db bun.IDB, c Content) {
	t.Helper()
	ctx := context.Background()

	if len(c.Categories) > 0 {
		if _, err := db.NewInsert().Model(&c.Categories).Exec(ctx); err != nil {
			t.Fatalf("failed to seed categories: %v", err)
		}
	}
	if len(c.Tags) > 0 {
		if _, err := db.NewInsert().Model(&c.Tags).Exec(ctx); err != nil {
			t.Fatalf("failed to seed tags: %v", err)
		}
	}
	if len(c.Posts) > 0 {
		if _, err := db.NewInsert().Model(&c.Posts).Exec(ctx); err != nil {
			t.Fatalf("failed to seed posts: %v", err)
		}
	}
	if len(c.PostTags) > 0 {
		rows := make([]*model.PostTag, 0, len(c.PostTags))
		for _, pt := range c.PostTags {
			rows = append(rows, &model.PostTag{PostID: pt.PostID, TagID: pt.TagID})
		}
		if _, err := db.NewInsert().Model(&rows).Exec(ctx); err != nil {
			t.Fatalf("failed to seed post tags: %v", err)
		}
	}
}

// LoadFixtureJSON loads JSON test data from a fixture file and unmarshals it.
// The path is relative to the test package directory.
func LoadFixtureJSON(t testing.TB, path string, dest any) {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to load fixture from %s: %v", path, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		t.Fatalf("failed to unmarshal JSON fixture from %s: %v", path, err)
	}
}

// FixturePath constructs a path to a fixture file relative to the testdata directory.
func FixturePath(filename string) string {
	return filepath.Join("testdata", filename)
}
