package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/codexcrawl/internal/model"
)

// IndexFile is the index written by MarkdownSink.PutAll.
const IndexFile = "README.md"

// MarkdownSink writes a <id>.md outline per codex and a README.md index.
type MarkdownSink struct {
	dir    string
	logger *slog.Logger
}

// NewMarkdownSink creates a MarkdownSink writing into dir.
func NewMarkdownSink(dir string, logger *slog.Logger) *MarkdownSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &MarkdownSink{dir: dir, logger: logger}
}

// Put writes <dir>/<id>.md.
func (s *MarkdownSink) Put(_ context.Context, id string, result *model.CodexResult) error {
	name, err := fileName(id, ".md")
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := WriteCodexMarkdown(&buf, result); err != nil {
		return fmt.Errorf("failed to render codex %s: %w", id, err)
	}

	path := filepath.Join(s.dir, name)
	if err := writeFile(path, buf.Bytes()); err != nil {
		return err
	}
	s.logger.Debug("saved codex outline", "codex", id, "path", path)
	return nil
}

// PutAll writes <dir>/README.md.
func (s *MarkdownSink) PutAll(_ context.Context, outcome model.Outcome) error {
	var buf bytes.Buffer
	if err := WriteIndexMarkdown(&buf, outcome); err != nil {
		return fmt.Errorf("failed to render index: %w", err)
	}
	return writeFile(filepath.Join(s.dir, IndexFile), buf.Bytes())
}

// WriteCodexMarkdown renders one codex: a stats table, a status alert,
// a kind distribution chart and a nested outline of the tree.
func WriteCodexMarkdown(w io.Writer, result *model.CodexResult) error {
	md := markdown.NewMarkdown(w)
	stats := result.Stats()

	md.H1("Codex " + result.ID)
	md.PlainText("")

	rows := [][]string{
		{"URL", result.URL},
		{"Articles", strconv.Itoa(stats.Articles)},
		{"Sections", strconv.Itoa(stats.Sections)},
		{"Chapters", strconv.Itoa(stats.Chapters)},
		{"Failed articles", strconv.Itoa(stats.FailedArticles)},
		{"Empty articles", strconv.Itoa(stats.EmptyArticles)},
		{"Depth", strconv.Itoa(stats.MaxDepth)},
	}
	if !result.CrawledAt.IsZero() {
		rows = append(rows,
			[]string{"Crawled at", result.CrawledAt.Format("2006-01-02 15:04:05 MST")},
			[]string{"Elapsed", result.Elapsed.Round(time.Millisecond).String()},
		)
	}
	md.Table(markdown.TableSet{Header: []string{"Property", "Value"}, Rows: rows})
	md.PlainText("")

	writeStatusAlert(md, result, stats)

	if stats.Nodes() > 0 {
		writeKindChart(md, stats)
	}

	md.H2("Contents")
	md.PlainText("")
	if len(result.Structure) == 0 {
		md.PlainText("No entries.")
	} else {
		model.Walk(result.Structure, func(n model.Node, depth int) bool {
			md.PlainText(outlineLine(n, depth))
			return true
		})
	}
	md.PlainText("")

	return md.Build()
}

func writeStatusAlert(md *markdown.Markdown, result *model.CodexResult, stats model.Stats) {
	switch {
	case result.Err != nil:
		md.Cautionf("Crawl aborted: %s", result.Err)
	case len(result.Structure) == 0:
		md.Warningf("No entries were found at %s.", result.URL)
	case stats.FailedArticles > 0:
		md.Warningf("%d article(s) could not be fetched.", stats.FailedArticles)
	case stats.EmptyArticles > 0:
		md.Note(strconv.Itoa(stats.EmptyArticles) + " article(s) have no text.")
	default:
		md.Tip("All articles were fetched.")
	}
	md.PlainText("")
}

func writeKindChart(md *markdown.Markdown, stats model.Stats) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Entries by kind"),
		piechart.WithShowData(true),
	)
	if stats.Sections > 0 {
		chart.LabelAndIntValue("Sections", uint64(stats.Sections)) //nolint:gosec // counts are never negative
	}
	if stats.Chapters > 0 {
		chart.LabelAndIntValue("Chapters", uint64(stats.Chapters)) //nolint:gosec // counts are never negative
	}
	if stats.Articles > 0 {
		chart.LabelAndIntValue("Articles", uint64(stats.Articles)) //nolint:gosec // counts are never negative
	}

	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// outlineLine renders one node as a nested bullet with a link.
func outlineLine(n model.Node, depth int) string {
	d := n.Descriptor()
	line := strings.Repeat("  ", depth-1) + "- " + link(d.Title, d.URL)

	switch v := n.(type) {
	case *model.Article:
		switch {
		case v.Failed():
			line += " (fetch failed)"
		case v.Empty():
			line += " (no text)"
		}
	case *model.Section:
		if v.Type == model.KindSection {
			line = strings.Repeat("  ", depth-1) + "- **" + link(d.Title, d.URL) + "**"
		}
	}
	return line
}

func link(title, url string) string {
	if title == "" {
		title = url
	}
	title = strings.NewReplacer("[", `\[`, "]", `\]`).Replace(title)
	if url == "" {
		return title
	}
	return "[" + title + "](" + url + ")"
}

// WriteIndexMarkdown renders a table of every codex in outcome.
func WriteIndexMarkdown(w io.Writer, outcome model.Outcome) error {
	md := markdown.NewMarkdown(w)

	md.H1("Codexes")
	md.PlainText("")

	rows := make([][]string, 0, len(outcome)+1)
	for _, r := range outcome {
		if r == nil {
			continue
		}
		st := r.Stats()
		rows = append(rows, []string{
			link(r.ID, r.ID+".md"),
			r.URL,
			strconv.Itoa(st.Articles),
			strconv.Itoa(st.Sections),
			strconv.Itoa(st.Chapters),
			strconv.Itoa(st.FailedArticles),
			strconv.Itoa(st.MaxDepth),
		})
	}
	total := outcome.Stats()
	rows = append(rows, []string{
		"**Total**", "",
		strconv.Itoa(total.Articles),
		strconv.Itoa(total.Sections),
		strconv.Itoa(total.Chapters),
		strconv.Itoa(total.FailedArticles),
		strconv.Itoa(total.MaxDepth),
	})

	md.Table(markdown.TableSet{
		Header: []string{"Codex", "URL", "Articles", "Sections", "Chapters", "Failed", "Depth"},
		Rows:   rows,
	})
	md.PlainText("")

	if total.FailedArticles > 0 {
		md.Warningf("%d article(s) across all codexes could not be fetched.", total.FailedArticles)
		md.PlainText("")
	}

	return md.Build()
}
