package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nao1215/codexcrawl/internal/config"
)

// NewRootCmd creates the root command. Running it without a subcommand
// crawls the configured codexes.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "codexcrawl [root-url...]",
		Short: "Crawl legal codexes into JSON trees",
		Long: `codexcrawl downloads the structure of legal codexes published on
zakonrf.info: sections, chapters and the text of every article.

Each codex is written to <output>/<id>.json as soon as it finishes and all
codexes are written together to <output>/all_codexes.json. Pages that cannot
be fetched are kept in the tree with the text "Error fetching content".

Without arguments the built-in list of codexes is crawled. Root URLs given
as arguments replace that list.

Examples:
  # Crawl every default codex into ./codex_data
  codexcrawl

  # Crawl two codexes with 5 concurrent fetches
  codexcrawl -w 5 https://www.zakonrf.info/gk/ https://www.zakonrf.info/uk/

  # Also write a Markdown outline and skip the history database
  codexcrawl --markdown --no-db -o out

  # Route requests through a SOCKS5 proxy
  codexcrawl --proxy socks5://127.0.0.1:9050`,
		Version:       getVersion(),
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runCrawlCmd,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().String("db-dir", "",
		"Directory of the crawl history database (default: XDG data directory)")

	flags := cmd.Flags()
	flags.StringP("config", "c", "",
		"Configuration file path (default: .codexcrawl in current or home directory)")
	flags.StringP("output", "o", config.DefaultOutputDir,
		"Directory receiving the JSON files")
	flags.IntP("workers", "w", config.DefaultWorkers,
		"Maximum number of page fetches in flight")
	flags.DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each page fetch")
	flags.String("user-agent", config.DefaultUserAgent,
		"User-Agent header sent with every request")
	flags.Bool("markdown", false,
		"Also write a Markdown outline per codex and an index")
	flags.Bool("no-db", false,
		"Do not record the crawl in the history database")
	flags.Int("max-depth", config.DefaultMaxDepth,
		"Stop descending below this many levels (0 = unlimited)")
	flags.Int("retries", config.DefaultRetries,
		"Extra attempts for a page that failed with a retryable error")
	flags.Duration("retry-backoff", config.DefaultRetryBackoff,
		"Delay before the first retry; later delays double")
	flags.Int("codex-concurrency", config.DefaultCodexConcurrency,
		"Maximum number of codexes crawled at once (0 = all)")
	flags.String("proxy", "",
		"Proxy URL (socks5://host:port or http://host:port)")
	flags.Bool("compact", false,
		"Write JSON without indentation")
	flags.String("log-format", config.LogFormatText,
		"Log format: text or json")

	cmd.AddCommand(NewCompareCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
