package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/nao1215/codexcrawl/internal/model"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) *Store {
	t.Helper()

	db, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func testResult(rootURL string, at time.Time, articles ...string) *model.CodexResult {
	r := model.NewCodexResult(rootURL)
	for i, title := range articles {
		d := model.NodeDescriptor{Title: title, URL: rootURL + string(rune('a'+i)) + "/"}
		r.Structure = append(r.Structure, model.NewArticle(d, []string{"Текст " + title}))
	}
	r.CrawledAt = at
	r.Elapsed = 1200 * time.Millisecond
	return r
}

// TestOpen tests database opening and creation.
func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "newdir", "subdir")
		db, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if _, err := os.Stat(filepath.Join(dbDir, FileName)); err != nil {
			t.Errorf("database file was not created: %v", err)
		}
		if db.Path() != filepath.Join(dbDir, FileName) {
			t.Errorf("unexpected path %q", db.Path())
		}
	})

	t.Run("CreateIfNotExists=false returns error when database does not exist", func(t *testing.T) {
		t.Parallel()

		_, err := Open(t.TempDir(), Options{CreateIfNotExists: false})
		if !errors.Is(err, os.ErrNotExist) {
			t.Errorf("expected os.ErrNotExist, got %v", err)
		}
	})

	t.Run("CreateIfNotExists=false opens existing database", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		db, err := Open(dir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		_ = db.Close()

		db, err = Open(dir, Options{CreateIfNotExists: false, EnableWAL: true})
		if err != nil {
			t.Fatalf("failed to reopen database: %v", err)
		}
		_ = db.Close()
	})
}

// TestStore_SaveAndGet tests storing and reading crawls back.
func TestStore_SaveAndGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ignoreTiming := cmpopts.IgnoreFields(model.CodexResult{}, "CrawledAt", "Elapsed", "Err")

	t.Run("round trips a tree", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		want := testResult("https://www.zakonrf.info/gk/", time.Now(), "Статья 1", "Статья 2")
		want.Structure = append(want.Structure, model.NewSection(
			model.NodeDescriptor{Title: "Раздел", URL: "https://www.zakonrf.info/gk/r/", Kind: model.KindSection},
			[]model.Node{model.NewFailedArticle(model.NodeDescriptor{Title: "Статья 3"})},
		))

		id, err := db.SaveCodex(ctx, want)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		got, err := db.GetByID(ctx, id)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if diff := cmp.Diff(want, got, ignoreTiming); diff != "" {
			t.Errorf("codex mismatch (-want +got):\n%s", diff)
		}
		if got.Elapsed != 1200*time.Millisecond {
			t.Errorf("expected elapsed 1.2s, got %v", got.Elapsed)
		}
		if got.CrawledAt.IsZero() {
			t.Error("expected CrawledAt to be restored")
		}
	})

	t.Run("returns nil for unknown codex and id", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		if got, err := db.GetLatest(ctx, "missing"); err != nil || got != nil {
			t.Errorf("expected nil, nil; got %v, %v", got, err)
		}
		if got, err := db.GetByID(ctx, 42); err != nil || got != nil {
			t.Errorf("expected nil, nil; got %v, %v", got, err)
		}
	})

	t.Run("history is newest first", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
		for i, titles := range [][]string{{"A"}, {"A", "B"}, {"A", "B", "C"}} {
			if _, err := db.SaveCodex(ctx, testResult("https://www.zakonrf.info/gk/", base.Add(time.Duration(i)*time.Hour), titles...)); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if _, err := db.SaveCodex(ctx, testResult("https://www.zakonrf.info/uk/", base, "X")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		history, err := db.GetHistory(ctx, "gk")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(history) != 3 {
			t.Fatalf("expected 3 entries, got %d", len(history))
		}
		for i, want := range []int{3, 2, 1} {
			if history[i].Stats.Articles != want {
				t.Errorf("entry %d: expected %d articles, got %d", i, want, history[i].Stats.Articles)
			}
		}
		if !history[0].Timestamp.Equal(base.Add(2 * time.Hour)) {
			t.Errorf("unexpected newest timestamp %v", history[0].Timestamp)
		}

		latest, err := db.GetLatest(ctx, "gk")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(latest.Structure) != 3 {
			t.Errorf("expected latest crawl with 3 nodes, got %d", len(latest.Structure))
		}

		codexes, err := db.ListCodexes(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if diff := cmp.Diff([]string{"gk", "uk"}, codexes); diff != "" {
			t.Errorf("codexes mismatch (-want +got):\n%s", diff)
		}
	})
}

// TestStore_Sink tests the sink methods.
func TestStore_Sink(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := setupTestDB(t)

	gk := testResult("https://www.zakonrf.info/gk/", time.Now(), "A")
	uk := testResult("https://www.zakonrf.info/uk/", time.Now(), "B", "C")
	for _, r := range []*model.CodexResult{gk, uk} {
		if err := db.Put(ctx, r.ID, r); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if err := db.PutAll(ctx, model.Outcome{gk, uk}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	runs, err := db.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	if runs[0].Codexes != 2 || runs[0].Stats.Articles != 3 {
		t.Errorf("unexpected run %+v", runs[0])
	}

	history, err := db.GetHistory(ctx, "uk")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 1 || history[0].RunID != runs[0].ID {
		t.Errorf("expected crawl linked to run %d, got %+v", runs[0].ID, history)
	}

	// A second run links only its own crawls.
	if err := db.PutAll(ctx, model.Outcome{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	runs, err = db.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("expected 2 runs, got %d", len(runs))
	}
	history, err = db.GetHistory(ctx, "gk")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if history[0].RunID != runs[1].ID {
		t.Errorf("expected earlier crawl to stay linked to run %d, got %d", runs[1].ID, history[0].RunID)
	}
}

// TestParseTimestamp tests timestamp parsing.
func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	want := time.Date(2026, 3, 1, 10, 20, 30, 0, time.UTC)
	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{name: "sqlite default", input: "2026-03-01 10:20:30", want: want},
		{name: "milliseconds", input: "2026-03-01 10:20:30.500", want: want.Add(500 * time.Millisecond)},
		{name: "iso with z", input: "2026-03-01T10:20:30Z", want: want},
		{name: "rfc3339", input: "2026-03-01T10:20:30+00:00", want: want},
		{name: "garbage", input: "yesterday", want: time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := parseTimestamp(tt.input); !got.Equal(tt.want) {
				t.Errorf("parseTimestamp(%q) = %v, expected %v", tt.input, got, tt.want)
			}
		})
	}
}
