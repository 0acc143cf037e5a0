package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nao1215/codexcrawl/internal/config"
	"github.com/nao1215/codexcrawl/internal/database"
	"github.com/nao1215/codexcrawl/internal/pipeline"
	"github.com/nao1215/codexcrawl/internal/report"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// codexSite serves one small codex under /gk/. The title of the first
// section changes after rename is set.
type codexSite struct {
	rename atomic.Bool
}

func (s *codexSite) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sectionTitle := "Раздел I"
	if s.rename.Load() {
		sectionTitle = "Раздел I. Общие положения"
	}

	pages := map[string]string{
		"/gk/": `<html><body><ul class="law-element__tree">` +
			`<li class="law-element__tree-item law-element__tree-item_r"><a href="/gk/r1/">` + sectionTitle + `</a></li>` +
			`<li class="law-element__tree-item law-element__tree-item_st"><a href="/gk/2/">Статья 2</a></li>` +
			`</ul></body></html>`,
		"/gk/r1/": `<html><body><ul class="law-element__tree">` +
			`<li class="law-element__tree-item law-element__tree-item_st"><a href="/gk/1/">Статья 1</a></li>` +
			`</ul></body></html>`,
		"/gk/1/": `<html><body><div class="law-element__body content-body"><p>Первая статья.</p></div></body></html>`,
		"/gk/2/": `<html><body><div class="law-element__body content-body"><p>Вторая статья.</p></div></body></html>`,
	}

	body, ok := pages[r.URL.Path]
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, body)
}

// writeConfig writes a config file into a temporary directory.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".codexcrawl")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

// parseRootFlags builds the root command and parses args without running it.
func parseRootFlags(t *testing.T, args ...string) (*config.Config, error) {
	t.Helper()
	cmd := NewRootCmd()
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("failed to parse flags: %v", err)
	}
	return buildConfig(cmd, cmd.Flags().Args())
}

// TestBuildConfig tests how defaults, the config file, flags and arguments combine.
func TestBuildConfig(t *testing.T) {
	t.Parallel()

	cfgFile := writeConfig(t, `
roots:
  - https://example.com/a/
workers: 7
timeout: 3s
output_dir: from_file
retries: 2
sites:
  example.com:
    cookie: "session=abc"
`)

	t.Run("config file overrides defaults", func(t *testing.T) {
		t.Parallel()

		cfg, err := parseRootFlags(t, "-c", cfgFile)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if diff := cmp.Diff([]string{"https://example.com/a/"}, cfg.Roots); diff != "" {
			t.Errorf("roots mismatch (-want +got):\n%s", diff)
		}
		if cfg.Workers != 7 || cfg.Timeout != 3*time.Second || cfg.OutputDir != "from_file" || cfg.Retries != 2 {
			t.Errorf("unexpected config: %+v", cfg)
		}
		if got := cfg.SiteConfigs.GetSiteConfig("example.com").Cookie; got != "session=abc" {
			t.Errorf("expected site cookie, got %q", got)
		}
		if !cfg.SaveToDB {
			t.Error("expected database enabled by default")
		}
	})

	t.Run("flags override config file", func(t *testing.T) {
		t.Parallel()

		cfg, err := parseRootFlags(t, "-c", cfgFile, "-w", "3", "-o", "out", "--no-db", "--markdown", "--max-depth", "2")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Workers != 3 || cfg.OutputDir != "out" || cfg.MaxDepth != 2 {
			t.Errorf("unexpected config: %+v", cfg)
		}
		if cfg.SaveToDB || !cfg.Markdown {
			t.Errorf("expected --no-db and --markdown to apply, got SaveToDB=%v Markdown=%v", cfg.SaveToDB, cfg.Markdown)
		}
		if cfg.Timeout != 3*time.Second {
			t.Errorf("expected unset flag to keep file value, got %v", cfg.Timeout)
		}
	})

	t.Run("arguments replace roots", func(t *testing.T) {
		t.Parallel()

		cfg, err := parseRootFlags(t, "-c", cfgFile, "https://example.com/b/", "https://example.com/c/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if diff := cmp.Diff([]string{"https://example.com/b/", "https://example.com/c/"}, cfg.Roots); diff != "" {
			t.Errorf("roots mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("tuning and format flags", func(t *testing.T) {
		t.Parallel()

		cfg, err := parseRootFlags(t, "-c", cfgFile,
			"--retry-backoff", "1s", "--codex-concurrency", "2", "--compact", "--log-format", "json")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.RetryBackoff != time.Second || cfg.CodexConcurrency != 2 {
			t.Errorf("unexpected tuning: backoff=%v concurrency=%d", cfg.RetryBackoff, cfg.CodexConcurrency)
		}
		if !cfg.CompactJSON || cfg.LogFormat != config.LogFormatJSON {
			t.Errorf("unexpected format: compact=%v log=%q", cfg.CompactJSON, cfg.LogFormat)
		}
	})

	t.Run("unset tuning flags keep defaults", func(t *testing.T) {
		t.Parallel()

		cfg, err := parseRootFlags(t, "-c", cfgFile)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.RetryBackoff != config.DefaultRetryBackoff || cfg.CodexConcurrency != 0 {
			t.Errorf("unexpected tuning: backoff=%v concurrency=%d", cfg.RetryBackoff, cfg.CodexConcurrency)
		}
		if cfg.CompactJSON || cfg.LogFormat != config.LogFormatText {
			t.Errorf("unexpected format: compact=%v log=%q", cfg.CompactJSON, cfg.LogFormat)
		}
	})

	t.Run("db dir flag", func(t *testing.T) {
		t.Parallel()

		cfg, err := parseRootFlags(t, "-c", cfgFile, "--db-dir", "/tmp/history")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.DBDir != "/tmp/history" {
			t.Errorf("expected db dir from flag, got %q", cfg.DBDir)
		}
	})

	t.Run("missing explicit config file", func(t *testing.T) {
		t.Parallel()

		_, err := parseRootFlags(t, "-c", filepath.Join(t.TempDir(), "missing.yaml"))
		if err == nil || !strings.Contains(err.Error(), "configuration file not found") {
			t.Errorf("expected not found error, got %v", err)
		}
	})

	t.Run("malformed config file", func(t *testing.T) {
		t.Parallel()

		_, err := parseRootFlags(t, "-c", writeConfig(t, "workers: [oops"))
		if err == nil || !strings.Contains(err.Error(), "failed to load config file") {
			t.Errorf("expected parse error, got %v", err)
		}
	})
}

// TestGetVerboseFlag tests verbose flag lookup from a subcommand.
func TestGetVerboseFlag(t *testing.T) {
	t.Parallel()

	root := NewRootCmd()
	if err := root.PersistentFlags().Set("verbose", "true"); err != nil {
		t.Fatal(err)
	}
	sub, _, err := root.Find([]string{"compare"})
	if err != nil {
		t.Fatal(err)
	}
	if !getVerboseFlag(sub) {
		t.Error("expected verbose from root persistent flag")
	}
}

// TestRunCrawlCmd runs the whole crawl against a local site.
func TestRunCrawlCmd(t *testing.T) {
	t.Parallel()

	site := &codexSite{}
	srv := httptest.NewServer(site)
	t.Cleanup(srv.Close)
	cfgFile := writeConfig(t, "workers: 2\n")

	t.Run("writes json and summary without database", func(t *testing.T) {
		t.Parallel()

		outDir := filepath.Join(t.TempDir(), "codex_data")
		out, err := executeRoot(t, "-c", cfgFile, "--no-db", "-o", outDir, srv.URL+"/gk/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		for _, want := range []string{"gk", "TOTAL", "Completed in"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected summary to contain %q, got:\n%s", want, out)
			}
		}

		f, err := os.Open(filepath.Join(outDir, "gk.json"))
		if err != nil {
			t.Fatalf("expected codex file: %v", err)
		}
		defer f.Close()
		result, err := report.ReadCodex(f)
		if err != nil {
			t.Fatalf("failed to read codex: %v", err)
		}
		stats := result.Stats()
		if stats.Articles != 2 || stats.Sections != 1 || stats.FailedArticles != 0 {
			t.Errorf("unexpected tree stats: %+v", stats)
		}

		if _, err := os.Stat(filepath.Join(outDir, report.AllCodexesFile)); err != nil {
			t.Errorf("expected aggregate file: %v", err)
		}
		if _, err := os.Stat(filepath.Join(outDir, report.IndexFile)); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("expected no markdown index without --markdown, got %v", err)
		}
	})

	t.Run("writes markdown when asked", func(t *testing.T) {
		t.Parallel()

		outDir := t.TempDir()
		if _, err := executeRoot(t, "-c", cfgFile, "--no-db", "--markdown", "-o", outDir, srv.URL+"/gk/"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, name := range []string{"gk.md", report.IndexFile} {
			if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
				t.Errorf("expected %s: %v", name, err)
			}
		}
	})

	t.Run("unreachable root still writes an empty codex", func(t *testing.T) {
		t.Parallel()

		outDir := t.TempDir()
		if _, err := executeRoot(t, "-c", cfgFile, "--no-db", "-o", outDir, srv.URL+"/missing/"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		content, err := os.ReadFile(filepath.Join(outDir, "missing.json")) //nolint:gosec // test path
		if err != nil {
			t.Fatalf("expected codex file: %v", err)
		}
		if !strings.Contains(string(content), `"structure": []`) {
			t.Errorf("expected empty structure, got:\n%s", content)
		}
	})

	t.Run("fails when the aggregate cannot be written", func(t *testing.T) {
		t.Parallel()

		blocker := filepath.Join(t.TempDir(), "file")
		if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
		_, err := executeRoot(t, "-c", cfgFile, "--no-db", "-o", blocker, srv.URL+"/gk/")
		if !errors.Is(err, pipeline.ErrAggregateWrite) {
			t.Errorf("expected ErrAggregateWrite, got %v", err)
		}
	})

	t.Run("rejects invalid configuration", func(t *testing.T) {
		t.Parallel()

		_, err := executeRoot(t, "-c", cfgFile, "--no-db", "-w", "0", srv.URL+"/gk/")
		if !errors.Is(err, config.ErrInvalidWorkers) {
			t.Errorf("expected ErrInvalidWorkers, got %v", err)
		}
	})
}

// TestRunCrawlCmdSelectors crawls a site with its own markup named in the config file.
func TestRunCrawlCmdSelectors(t *testing.T) {
	t.Parallel()

	pages := map[string]string{
		"/kodeks/": `<html><body><ol class="contents">` +
			`<li class="entry entry_part"><a href="/kodeks/part1/">Часть 1</a></li>` +
			`<li class="entry entry_article"><a href="/kodeks/9/">Статья 9</a></li>` +
			`</ol></body></html>`,
		"/kodeks/part1/": `<html><body><ol class="contents">` +
			`<li class="entry entry_article"><a href="/kodeks/1/">Статья 1</a></li>` +
			`</ol></body></html>`,
		"/kodeks/1/": `<html><body><main class="text"><p>Первая.</p><p class="editorial">Ред.</p></main></body></html>`,
		"/kodeks/9/": `<html><body><main class="text"><p>Девятая.</p></main></body></html>`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)

	cfgFile := writeConfig(t, `compact_json: true
selectors:
  tree: "ol.contents"
  item: "li.entry"
  article_class: "entry_article"
  section_class: "entry_part"
  body: "main.text"
  paragraph: "p"
  skip_class: "editorial"
`)

	outDir := t.TempDir()
	if _, err := executeRoot(t, "-c", cfgFile, "--no-db", "-o", outDir, srv.URL+"/kodeks/"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(outDir, "kodeks.json")) //nolint:gosec // test path
	if err != nil {
		t.Fatalf("expected codex file: %v", err)
	}
	if strings.Contains(string(content), "\n    ") {
		t.Errorf("expected compact JSON, got:\n%s", content)
	}

	result, err := report.ReadCodex(bytes.NewReader(content))
	if err != nil {
		t.Fatalf("failed to read codex: %v", err)
	}
	stats := result.Stats()
	if stats.Articles != 2 || stats.Sections != 1 || stats.FailedArticles != 0 {
		t.Errorf("unexpected tree stats: %+v", stats)
	}
	if strings.Contains(string(content), "Ред.") {
		t.Errorf("expected skip class to drop editorial notes, got:\n%s", content)
	}
	if !strings.Contains(string(content), "Первая.") {
		t.Errorf("expected article text, got:\n%s", content)
	}
}

// TestNewLogger tests the log format switch.
func TestNewLogger(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		format string
		prefix string
	}{
		{name: "text", format: config.LogFormatText, prefix: "time="},
		{name: "json", format: config.LogFormatJSON, prefix: "{"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.NewConfig()
			cfg.LogFormat = tt.format

			var buf bytes.Buffer
			newLogger(&buf, cfg).Warn("codex has empty structure", "codex", "gk")
			if !strings.HasPrefix(buf.String(), tt.prefix) {
				t.Errorf("expected output starting with %q, got %q", tt.prefix, buf.String())
			}
		})
	}
}

// TestCrawlThenCompare crawls twice into one database and compares the runs.
func TestCrawlThenCompare(t *testing.T) {
	t.Parallel()

	site := &codexSite{}
	srv := httptest.NewServer(site)
	t.Cleanup(srv.Close)
	cfgFile := writeConfig(t, "workers: 2\n")
	dbDir := t.TempDir()

	for i := range 2 {
		if i == 1 {
			site.rename.Store(true)
			time.Sleep(5 * time.Millisecond)
		}
		if _, err := executeRoot(t, "-c", cfgFile, "--db-dir", dbDir, "-o", t.TempDir(), srv.URL+"/gk/"); err != nil {
			t.Fatalf("crawl %d failed: %v", i+1, err)
		}
	}

	store, err := database.Open(dbDir, database.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	runs, err := store.ListRuns(context.Background(), 0)
	_ = store.Close()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}

	out, err := executeRoot(t, "compare", "--db-dir", dbDir, "gk")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := fmt.Sprintf("~ %s/gk/r1/: %q -> %q", srv.URL, "Раздел I", "Раздел I. Общие положения")
	if !strings.Contains(out, want) {
		t.Errorf("expected output to contain %q, got:\n%s", want, out)
	}
	if !strings.Contains(out, "Unchanged: 2") {
		t.Errorf("expected 2 unchanged nodes, got:\n%s", out)
	}

	out, err = executeRoot(t, "compare", "--db-dir", dbDir, "--runs")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Recent crawl runs (2)") {
		t.Errorf("expected two runs listed, got:\n%s", out)
	}
}

// TestRunCrawlCancelled tests that a cancelled crawl still writes its results.
func TestRunCrawlCancelled(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(&codexSite{})
	t.Cleanup(srv.Close)

	cfg := config.NewConfig()
	cfg.Roots = []string{srv.URL + "/gk/"}
	cfg.OutputDir = t.TempDir()
	cfg.SaveToDB = false

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	if err := runCrawl(ctx, cfg, quietLogger(), &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.OutputDir, "gk.json")); err != nil {
		t.Errorf("expected codex file: %v", err)
	}
	if !strings.Contains(out.String(), "gk (empty)") {
		t.Errorf("expected empty codex in summary, got:\n%s", out.String())
	}
}
