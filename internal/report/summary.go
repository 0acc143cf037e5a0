package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/codexcrawl/internal/model"
)

// SummaryWriter prints a plain-text table of a crawl outcome for the terminal.
type SummaryWriter struct {
	output io.Writer

	// verbose adds the URL of every codex.
	verbose bool
}

// SummaryWriterOption configures a SummaryWriter.
type SummaryWriterOption func(*SummaryWriter)

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SummaryWriterOption {
	return func(w *SummaryWriter) {
		w.verbose = verbose
	}
}

// NewSummaryWriter creates a SummaryWriter that outputs to the given writer.
func NewSummaryWriter(output io.Writer, opts ...SummaryWriterOption) *SummaryWriter {
	w := &SummaryWriter{output: output}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

const summaryRow = "%-32s %9s %9s %9s %7s\n"

// Write prints one row per codex, a total row and the elapsed time.
func (w *SummaryWriter) Write(outcome model.Outcome, elapsed time.Duration) (int, error) {
	var sb strings.Builder

	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	fmt.Fprintf(&sb, summaryRow, "CODEX", "ARTICLES", "SECTIONS", "CHAPTERS", "FAILED")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")

	for _, r := range outcome {
		if r == nil {
			continue
		}
		st := r.Stats()
		name := r.ID
		if len(r.Structure) == 0 {
			name += " (empty)"
		}
		fmt.Fprintf(&sb, summaryRow, name,
			fmt.Sprint(st.Articles), fmt.Sprint(st.Sections), fmt.Sprint(st.Chapters), fmt.Sprint(st.FailedArticles))
		if w.verbose {
			fmt.Fprintf(&sb, "  %s\n", r.URL)
		}
	}

	total := outcome.Stats()
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	fmt.Fprintf(&sb, summaryRow, "TOTAL",
		fmt.Sprint(total.Articles), fmt.Sprint(total.Sections), fmt.Sprint(total.Chapters), fmt.Sprint(total.FailedArticles))
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Completed in %.2f seconds\n", elapsed.Seconds())

	return io.WriteString(w.output, sb.String())
}
