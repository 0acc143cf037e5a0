package crawler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/nao1215/codexcrawl/internal/config"
	"github.com/nao1215/codexcrawl/internal/fetch"
	"github.com/nao1215/codexcrawl/internal/model"
	"github.com/nao1215/codexcrawl/internal/parser"
)

// defaultRetryBase is the first backoff delay when retries are enabled.
const defaultRetryBase = 500 * time.Millisecond

// Crawler expands a codex listing page into an ordered tree.
//
// Every fetch of every level, and of every root sharing the same gate,
// holds one gate slot while its request is in flight. Goroutines waiting
// for their children hold nothing, so nesting depth cannot exhaust the gate.
type Crawler struct {
	fetcher fetch.Fetcher
	parser  parser.PageParser
	gate    *semaphore.Weighted

	// maxDepth stops expanding sections below this level. 0 is unlimited.
	maxDepth int

	// retries is the number of extra attempts for a retryable fetch failure.
	retries   int
	retryBase time.Duration

	// sites supplies per-host ignore patterns.
	sites *config.File

	logger *slog.Logger

	pagesFetched  atomic.Int64
	fetchFailures atomic.Int64
	skipped       atomic.Int64
	cycles        atomic.Int64
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithGate shares an existing gate. All crawlers built with the same gate
// are bounded together.
func WithGate(gate *semaphore.Weighted) Option {
	return func(c *Crawler) {
		if gate != nil {
			c.gate = gate
		}
	}
}

// WithMaxDepth stops expanding sections below depth levels.
// Top-level entries are depth 1. 0 disables the limit.
func WithMaxDepth(depth int) Option {
	return func(c *Crawler) {
		c.maxDepth = depth
	}
}

// WithRetries sets the number of extra attempts for retryable failures.
func WithRetries(n int) Option {
	return func(c *Crawler) {
		c.retries = n
	}
}

// WithRetryBackoff sets the first backoff delay. Later delays double.
func WithRetryBackoff(base time.Duration) Option {
	return func(c *Crawler) {
		c.retryBase = base
	}
}

// WithSites sets the per-host configuration used for ignore patterns.
func WithSites(sites *config.File) Option {
	return func(c *Crawler) {
		c.sites = sites
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Crawler) {
		c.logger = logger
	}
}

// New creates a Crawler. Without WithGate the crawler gets
// a private gate of config.DefaultWorkers slots.
func New(f fetch.Fetcher, p parser.PageParser, opts ...Option) *Crawler {
	c := &Crawler{
		fetcher:   f,
		parser:    p,
		retryBase: defaultRetryBase,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.gate == nil {
		c.gate = semaphore.NewWeighted(config.DefaultWorkers)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}

	return c
}

// Crawl returns the top-level nodes listed on rootURL, fully expanded.
// It never fails: an unreachable root yields an empty slice and failed
// descendants degrade in place. Relative hrefs at every level are
// resolved against rootURL. A section whose URL is already one of its
// ancestors is kept without children.
func (c *Crawler) Crawl(ctx context.Context, rootURL string) []model.Node {
	page, err := c.fetch(ctx, rootURL)
	if err != nil {
		c.logger.Warn("failed to fetch codex root", "url", rootURL, "error", err)
		return []model.Node{}
	}

	return c.expand(ctx, branch{url: rootURL}.with(rootURL), c.parser.ParseChildren(page, rootURL), 1)
}

// lineage is the chain of page URLs from the root down to the section
// being expanded. Branches share their common prefix and never mutate it.
type lineage struct {
	url    string
	parent *lineage
}

// branch carries what every level of one root's crawl needs: the URL that
// relative hrefs resolve against and the ancestors of the current level.
type branch struct {
	url       string
	ancestors *lineage
}

func (b branch) with(pageURL string) branch {
	return branch{url: b.url, ancestors: &lineage{url: pageURL, parent: b.ancestors}}
}

func (b branch) visited(pageURL string) bool {
	for l := b.ancestors; l != nil; l = l.parent {
		if l.url == pageURL {
			return true
		}
	}
	return false
}

// expand crawls every descriptor concurrently. Each goroutine owns exactly
// one slot of the result, so the listing order survives any completion order.
func (c *Crawler) expand(ctx context.Context, b branch, descriptors []model.NodeDescriptor, depth int) []model.Node {
	descriptors = c.filter(descriptors)
	out := make([]model.Node, len(descriptors))

	var wg sync.WaitGroup
	for i, d := range descriptors {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer c.recoverNode(&out[i], d)
			out[i] = c.crawlNode(ctx, b, d, depth)
		}()
	}
	wg.Wait()

	return out
}

func (c *Crawler) crawlNode(ctx context.Context, b branch, d model.NodeDescriptor, depth int) model.Node {
	if d.Kind.IsLeaf() {
		page, err := c.fetch(ctx, d.URL)
		if err != nil {
			c.logger.Warn("failed to fetch article", "url", d.URL, "error", err)
			return model.NewFailedArticle(d)
		}
		return model.NewArticle(d, c.parser.ParseArticleBody(page))
	}

	if c.maxDepth > 0 && depth >= c.maxDepth {
		return model.NewSection(d, nil)
	}

	// A section listing one of its own ancestors would recurse forever.
	if b.visited(d.URL) {
		c.cycles.Add(1)
		c.logger.Warn("skipping cyclic section", "url", d.URL, "title", d.Title)
		return model.NewSection(d, nil)
	}

	page, err := c.fetch(ctx, d.URL)
	if err != nil {
		c.logger.Warn("failed to fetch section", "url", d.URL, "error", err)
		return model.NewSection(d, nil)
	}

	children := c.parser.ParseChildren(page, b.url)
	return model.NewSection(d, c.expand(ctx, b.with(d.URL), children, depth+1))
}

// recoverNode replaces a panicking node with its failure form.
func (c *Crawler) recoverNode(slot *model.Node, d model.NodeDescriptor) {
	r := recover()
	if r == nil {
		return
	}
	c.logger.Error("recovered panic while crawling node", "url", d.URL, "panic", r)
	if d.Kind.IsLeaf() {
		*slot = model.NewFailedArticle(d)
		return
	}
	*slot = model.NewSection(d, nil)
}

// fetch performs one gated request, retrying retryable failures.
// Backoff sleeps happen with the slot released.
func (c *Crawler) fetch(ctx context.Context, pageURL string) (*model.Page, error) {
	for attempt := 0; ; attempt++ {
		page, err := c.gatedFetch(ctx, pageURL)
		if err == nil {
			c.pagesFetched.Add(1)
			return page, nil
		}

		if attempt >= c.retries || !fetch.IsRetryable(err) {
			c.fetchFailures.Add(1)
			return nil, err
		}

		delay := fetch.Backoff(attempt, c.retryBase)
		c.logger.Debug("retrying fetch", "url", pageURL, "attempt", attempt+1, "delay", delay, "error", err)
		if serr := fetch.Sleep(ctx, delay); serr != nil {
			c.fetchFailures.Add(1)
			return nil, err
		}
	}
}

func (c *Crawler) gatedFetch(ctx context.Context, pageURL string) (*model.Page, error) {
	if err := c.gate.Acquire(ctx, 1); err != nil {
		return nil, &fetch.FetchError{URL: pageURL, Err: err}
	}
	defer c.gate.Release(1)

	return c.fetcher.Fetch(ctx, pageURL)
}

// Stats returns the crawler's counters so far.
func (c *Crawler) Stats() Stats {
	return Stats{
		PagesFetched:  c.pagesFetched.Load(),
		FetchFailures: c.fetchFailures.Load(),
		Skipped:       c.skipped.Load(),
		Cycles:        c.cycles.Load(),
	}
}

// Stats contains crawl counters.
type Stats struct {
	// PagesFetched is the number of successful fetches.
	PagesFetched int64

	// FetchFailures is the number of fetches that failed after all retries.
	FetchFailures int64

	// Skipped is the number of entries dropped by ignore patterns.
	Skipped int64

	// Cycles is the number of sections left unexpanded because they list
	// one of their own ancestors.
	Cycles int64
}
