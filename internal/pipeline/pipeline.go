package pipeline

import (
	"context"
	"log/slog"

	"github.com/nao1215/codexcrawl/internal/model"
)

// Step is one stage applied to a codex result.
// Steps run in sequence, each receiving the result left by the previous one.
type Step interface {
	// Do executes the step. Recoverable problems should be logged and
	// degrade the result; an error is reserved for failures that make
	// the remaining steps pointless.
	Do(ctx context.Context, result *model.CodexResult) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// Pipeline runs a fixed list of steps against one codex.
type Pipeline struct {
	steps []Step

	logger *slog.Logger
}

// Option is a function that configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// New creates a new Pipeline with the given options.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps: make([]Step, 0),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = slog.Default()
	}

	return p
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs all steps in order. Cancellation is checked between steps.
// The first step error is stored in result.Err and returned immediately.
func (p *Pipeline) Execute(ctx context.Context, result *model.CodexResult) error {
	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			p.logger.Warn("pipeline cancelled",
				"step", step.Name(),
				"codex", result.ID,
				"reason", err,
			)
			if result.Err == nil {
				result.Err = err
			}
			return err
		}

		p.logger.Debug("executing step", "step", step.Name(), "codex", result.ID)

		if err := step.Do(ctx, result); err != nil {
			p.logger.Error("step failed",
				"step", step.Name(),
				"codex", result.ID,
				"error", err,
			)
			if result.Err == nil {
				result.Err = err
			}
			return err
		}
	}

	return nil
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
