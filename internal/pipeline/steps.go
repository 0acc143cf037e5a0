package pipeline

import (
	"context"
	"log/slog"

	"github.com/nao1215/codexcrawl/internal/model"
)

// Tree builds the top-level nodes of a codex. *crawler.Crawler implements it.
type Tree interface {
	Crawl(ctx context.Context, rootURL string) []model.Node
}

// CrawlStep fills result.Structure by crawling result.URL.
type CrawlStep struct {
	tree Tree
}

// NewCrawlStep creates a crawl step backed by tree.
func NewCrawlStep(tree Tree) *CrawlStep {
	return &CrawlStep{tree: tree}
}

// Do implements Step.
func (s *CrawlStep) Do(ctx context.Context, result *model.CodexResult) error {
	nodes := s.tree.Crawl(ctx, result.URL)
	if nodes == nil {
		nodes = []model.Node{}
	}
	result.Structure = nodes
	return nil
}

// Name implements Step.
func (s *CrawlStep) Name() string {
	return "crawl"
}

// StatsStep logs a summary of the crawled tree.
type StatsStep struct {
	logger *slog.Logger
}

// NewStatsStep creates a stats step. A nil logger uses slog.Default.
func NewStatsStep(logger *slog.Logger) *StatsStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatsStep{logger: logger}
}

// Do implements Step.
func (s *StatsStep) Do(_ context.Context, result *model.CodexResult) error {
	stats := result.Stats()

	if len(result.Structure) == 0 {
		s.logger.Warn("codex has empty structure", "codex", result.ID, "url", result.URL)
		return nil
	}

	attrs := []any{
		"codex", result.ID,
		"articles", stats.Articles,
		"sections", stats.Sections,
		"chapters", stats.Chapters,
		"depth", stats.MaxDepth,
	}
	if stats.FailedArticles > 0 {
		s.logger.Warn("codex has failed articles", append(attrs, "failed", stats.FailedArticles)...)
		return nil
	}
	s.logger.Info("codex tree built", attrs...)
	return nil
}

// Name implements Step.
func (s *StatsStep) Name() string {
	return "stats"
}
