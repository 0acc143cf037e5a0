package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/semaphore"

	"github.com/nao1215/codexcrawl/internal/config"
	"github.com/nao1215/codexcrawl/internal/crawler"
	"github.com/nao1215/codexcrawl/internal/database"
	"github.com/nao1215/codexcrawl/internal/fetch"
	"github.com/nao1215/codexcrawl/internal/log"
	"github.com/nao1215/codexcrawl/internal/parser"
	"github.com/nao1215/codexcrawl/internal/pipeline"
	"github.com/nao1215/codexcrawl/internal/report"
)

// runCrawlCmd executes the crawl.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := newLogger(cmd.ErrOrStderr(), cfg)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Handle interrupt signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Warn("received shutdown signal, cancelling...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return runCrawl(ctx, cfg, logger, cmd.OutOrStdout())
}

// newLogger builds the redacting logger in the configured format.
func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	if cfg.LogFormat == config.LogFormatJSON {
		return log.NewJSONLogger(w, cfg.Verbose)
	}
	return log.NewLogger(w, cfg.Verbose)
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// getDBDir returns the --db-dir flag, or the XDG data directory.
func getDBDir(cmd *cobra.Command) string {
	if dir, err := cmd.Flags().GetString("db-dir"); err == nil && dir != "" {
		return dir
	}
	return config.XDGDataDir()
}

// buildConfig layers defaults, the config file, explicitly set flags and
// positional root URLs, in that order.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error
	cfg.ConfigFilePath, err = flags.GetString("config")
	if err != nil {
		return nil, err
	}

	// An explicitly named config file must exist; a missing default is fine.
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	if configPath != "" {
		file, err := config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		cfg.ApplyFile(file)
	} else if cfg.ConfigFilePath != "" {
		return nil, fmt.Errorf("configuration file not found: %s", cfg.ConfigFilePath)
	}

	if flags.Changed("output") {
		if cfg.OutputDir, err = flags.GetString("output"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("workers") {
		if cfg.Workers, err = flags.GetInt("workers"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("timeout") {
		if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("user-agent") {
		if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("max-depth") {
		if cfg.MaxDepth, err = flags.GetInt("max-depth"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("retries") {
		if cfg.Retries, err = flags.GetInt("retries"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("retry-backoff") {
		if cfg.RetryBackoff, err = flags.GetDuration("retry-backoff"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("codex-concurrency") {
		if cfg.CodexConcurrency, err = flags.GetInt("codex-concurrency"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("proxy") {
		if cfg.Proxy, err = flags.GetString("proxy"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("compact") {
		if cfg.CompactJSON, err = flags.GetBool("compact"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("log-format") {
		if cfg.LogFormat, err = flags.GetString("log-format"); err != nil {
			return nil, err
		}
	}

	if cfg.Markdown, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	noDB, err := flags.GetBool("no-db")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noDB
	cfg.DBDir = getDBDir(cmd)
	cfg.Verbose = getVerboseFlag(cmd)

	if len(args) > 0 {
		cfg.Roots = append([]string(nil), args...)
	}

	return cfg, nil
}

// runCrawl crawls every root, writes the results and prints a summary to out.
func runCrawl(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer) error {
	start := time.Now()

	jsonOpts := []report.JSONSinkOption{report.WithJSONLogger(logger)}
	if cfg.CompactJSON {
		jsonOpts = append(jsonOpts, report.WithIndent("", ""))
	}
	sinks := []report.Sink{report.NewJSONSink(cfg.OutputDir, jsonOpts...)}
	if cfg.Markdown {
		sinks = append(sinks, report.NewMarkdownSink(cfg.OutputDir, logger))
	}
	if cfg.SaveToDB {
		store, err := database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer store.Close()
		logger.Debug("database opened", "path", store.Path())
		sinks = append(sinks, store)
	}

	client, err := fetch.NewHTTPClient(fetch.ClientOptions{
		Timeout:  cfg.Timeout,
		Proxy:    cfg.Proxy,
		MaxConns: cfg.Workers,
		Sites:    cfg.SiteConfigs,
	})
	if err != nil {
		return fmt.Errorf("failed to create HTTP client: %w", err)
	}

	fetcher := fetch.NewHTTPFetcher(client,
		fetch.WithTimeout(cfg.Timeout),
		fetch.WithUserAgent(cfg.UserAgent),
		fetch.WithMaxBodySize(cfg.MaxBodySize),
		fetch.WithLogger(logger),
	)

	// One gate for every crawler: Workers bounds fetches across all roots.
	gate := semaphore.NewWeighted(int64(cfg.Workers))
	tree := crawler.New(fetcher, parser.NewLawTreeParser(parser.WithSelectors(parserSelectors(cfg.Selectors))),
		crawler.WithGate(gate),
		crawler.WithMaxDepth(cfg.MaxDepth),
		crawler.WithRetries(cfg.Retries),
		crawler.WithRetryBackoff(cfg.RetryBackoff),
		crawler.WithSites(cfg.SiteConfigs),
		crawler.WithLogger(logger),
	)

	runner := pipeline.NewRunner(func() *pipeline.Pipeline {
		p := pipeline.New(pipeline.WithLogger(logger))
		p.AddSteps(pipeline.NewCrawlStep(tree), pipeline.NewStatsStep(logger))
		return p
	}, pipeline.WithRunnerLogger(logger), pipeline.WithConcurrency(cfg.CodexConcurrency))

	sink := report.NewMultiSink(sinks...)
	logger.Info("starting crawl",
		"codexes", len(cfg.Roots),
		"workers", cfg.Workers,
		"output", cfg.OutputDir,
		"sinks", sink.Len(),
		"saveToDB", cfg.SaveToDB,
	)

	outcome, sinkErr := runner.RunWithSink(ctx, cfg.Roots, sink)

	stats := tree.Stats()
	logger.Info("fetch statistics",
		"pages", stats.PagesFetched,
		"failures", stats.FetchFailures,
		"skipped", stats.Skipped,
		"cycles", stats.Cycles,
	)

	if _, err := report.NewSummaryWriter(out, report.WithVerbose(cfg.Verbose)).Write(outcome, time.Since(start)); err != nil {
		logger.Error("failed to print summary", "error", err)
	}

	if errors.Is(sinkErr, pipeline.ErrAggregateWrite) {
		return sinkErr
	}
	return nil
}

// parserSelectors converts configured selectors for the parser.
func parserSelectors(s config.Selectors) parser.Selectors {
	return parser.Selectors{
		Tree:         s.Tree,
		Item:         s.Item,
		ArticleClass: s.ArticleClass,
		SectionClass: s.SectionClass,
		Body:         s.Body,
		Paragraph:    s.Paragraph,
		SkipClass:    s.SkipClass,
	}
}
