package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/codexcrawl/internal/model"
)

// ErrAggregateWrite marks a failure of Sink.PutAll.
var ErrAggregateWrite = errors.New("failed to write aggregate")

// Sink receives crawl results. Put is called once per codex as it
// completes, PutAll once with every result in submission order.
// The runner never calls a sink concurrently.
type Sink interface {
	Put(ctx context.Context, id string, result *model.CodexResult) error
	PutAll(ctx context.Context, outcome model.Outcome) error
}

// Runner crawls several codex roots concurrently, one pipeline per root.
//
// The runner does not bound concurrency itself: fetch concurrency is
// bounded by the gate shared by the crawlers the factory builds.
type Runner struct {
	// pipelineFactory creates a fresh pipeline for each root.
	pipelineFactory func() *Pipeline

	// concurrency optionally limits the number of roots in progress.
	// Zero or less means no limit.
	concurrency int

	logger *slog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithRunnerLogger sets a custom logger for the runner.
func WithRunnerLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithConcurrency limits how many roots are crawled at once.
func WithConcurrency(n int) RunnerOption {
	return func(r *Runner) {
		r.concurrency = n
	}
}

// NewRunner creates a Runner.
func NewRunner(pipelineFactory func() *Pipeline, opts ...RunnerOption) *Runner {
	r := &Runner{pipelineFactory: pipelineFactory}

	for _, opt := range opts {
		opt(r)
	}

	if r.logger == nil {
		r.logger = slog.Default()
	}

	return r
}

// Run crawls every root and returns one result per root, in the order
// the roots were given. A root whose pipeline fails or panics still
// appears, with an empty structure and Err set.
func (r *Runner) Run(ctx context.Context, roots []string) model.Outcome {
	return r.run(ctx, roots, nil)
}

// RunWithSink is Run that also delivers results to sink. Sink errors are
// logged and returned joined; they never stop the crawl. A failed PutAll
// is wrapped in ErrAggregateWrite.
func (r *Runner) RunWithSink(ctx context.Context, roots []string, sink Sink) (model.Outcome, error) {
	var (
		mu   sync.Mutex
		errs []error
	)

	outcome := r.run(ctx, roots, func(result *model.CodexResult) {
		mu.Lock()
		defer mu.Unlock()
		if err := sink.Put(ctx, result.ID, result); err != nil {
			r.logger.Error("failed to save codex", "codex", result.ID, "error", err)
			errs = append(errs, fmt.Errorf("save %s: %w", result.ID, err))
		}
	})

	if err := sink.PutAll(ctx, outcome); err != nil {
		r.logger.Error("failed to save aggregate", "error", err)
		errs = append(errs, fmt.Errorf("%w: %w", ErrAggregateWrite, err))
	}

	return outcome, errors.Join(errs...)
}

func (r *Runner) run(ctx context.Context, roots []string, done func(*model.CodexResult)) model.Outcome {
	r.logger.Info("starting crawl", "codexes", len(roots))
	start := time.Now()

	outcome := make(model.Outcome, len(roots))

	var g errgroup.Group
	if r.concurrency > 0 {
		g.SetLimit(r.concurrency)
	}

	for i, root := range roots {
		g.Go(func() error {
			result := r.crawlOne(ctx, root, i, len(roots))
			outcome[i] = result
			if done != nil {
				done(result)
			}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers never return errors

	r.logger.Info("crawl complete",
		"codexes", len(roots),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)

	return outcome
}

// crawlOne runs a fresh pipeline for one root and contains any panic.
func (r *Runner) crawlOne(ctx context.Context, root string, index, total int) (result *model.CodexResult) {
	result = model.NewCodexResult(root)
	start := time.Now()

	r.logger.Info("crawling codex",
		"codex", result.ID,
		"url", root,
		"index", index+1,
		"total", total,
	)

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("recovered panic while crawling codex", "codex", result.ID, "panic", rec)
			result.Structure = []model.Node{}
			result.Err = fmt.Errorf("panic: %v", rec)
		}
		result.CrawledAt = time.Now()
		result.Elapsed = time.Since(start)
	}()

	p := r.pipelineFactory()
	r.logger.Debug("running pipeline", "codex", result.ID, "steps", p.StepNames())
	if err := p.Execute(ctx, result); err != nil {
		r.logger.Warn("codex crawl incomplete", "codex", result.ID, "error", err)
	}
	if result.Structure == nil {
		result.Structure = []model.Node{}
	}

	return result
}
