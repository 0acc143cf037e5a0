package config

import (
	"net/url"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "codexcrawl"

	// DefaultWorkers is the global ceiling on in-flight page fetches.
	DefaultWorkers = 20

	// DefaultTimeout applies to every single fetch, not to the whole run.
	DefaultTimeout = 10 * time.Second

	// DefaultOutputDir receives one JSON file per codex plus the aggregate.
	DefaultOutputDir = "codex_data"

	// DefaultUserAgent is a desktop browser string; the target sites
	// serve a reduced page to unknown agents.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// DefaultMaxBodySize limits how much of a response body is read.
	DefaultMaxBodySize = 10 * 1024 * 1024 // 10MB

	// DefaultMaxDepth of 0 means the tree is followed to its leaves.
	DefaultMaxDepth = 0

	// DefaultRetries of 0 keeps one attempt per page.
	DefaultRetries = 0

	// DefaultRetryBackoff is the delay before the first retry. Later delays double.
	DefaultRetryBackoff = 500 * time.Millisecond

	// DefaultCodexConcurrency of 0 starts every codex at once; the worker
	// gate still bounds their fetches.
	DefaultCodexConcurrency = 0

	// LogFormatText and LogFormatJSON are the accepted log formats.
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// DefaultRoots lists the codexes crawled when no roots are configured.
var DefaultRoots = []string{
	"https://www.zakonrf.info/gk/",
	"https://www.zakonrf.info/nk/",
	"https://www.zakonrf.info/apk/",
	"https://www.zakonrf.info/gpk/",
	"https://www.zakonrf.info/kas/",
	"https://www.zakonrf.info/jk/",
	"https://www.zakonrf.info/zk/",
	"https://www.zakonrf.info/koap/",
	"https://www.zakonrf.info/sk/",
	"https://www.zakonrf.info/tk/",
	"https://www.zakonrf.info/uik/",
	"https://www.zakonrf.info/uk/",
	"https://www.zakonrf.info/upk/",
	"https://www.zakonrf.info/budjetniy-kodeks/",
	"https://www.zakonrf.info/gradostroitelniy-kodeks/",
	"https://www.zakonrf.info/lesnoy-kodeks/",
}

// Config holds all configuration options for a crawl run.
// It is populated from defaults, the config file and CLI flags, in that
// order, and passed down explicitly.
type Config struct {
	// Roots are the codex listing pages to crawl, in output order.
	Roots []string

	// Workers is the maximum number of fetches in flight across all roots
	// and all tree levels.
	Workers int

	// Timeout bounds each individual fetch.
	Timeout time.Duration

	// UserAgent is sent with every request.
	UserAgent string

	// MaxBodySize is the maximum response body size in bytes to read.
	MaxBodySize int64

	// MaxDepth stops descending below this many levels. 0 is unlimited.
	MaxDepth int

	// Retries is the number of extra attempts for a failed fetch.
	Retries int

	// RetryBackoff is the delay before the first retry.
	RetryBackoff time.Duration

	// CodexConcurrency limits how many codexes are crawled at once. 0 is unlimited.
	CodexConcurrency int

	// Selectors override parts of the page markup the parser expects.
	Selectors Selectors

	// Proxy is an optional proxy URL (socks5:// or http://).
	Proxy string

	// OutputDir is where JSON (and optionally Markdown) files are written.
	OutputDir string

	// Markdown additionally writes a Markdown outline per codex.
	Markdown bool

	// CompactJSON writes the JSON files without indentation.
	CompactJSON bool

	// LogFormat is LogFormatText or LogFormatJSON.
	LogFormat string

	// Verbose enables debug logging.
	Verbose bool

	// ConfigFilePath is the explicit config file path, if any.
	ConfigFilePath string

	// SiteConfigs holds per-host settings loaded from the config file.
	SiteConfigs *File

	// DBDir is the directory holding the crawl history database.
	DBDir string

	// SaveToDB stores every crawl in the history database.
	SaveToDB bool
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	roots := make([]string, len(DefaultRoots))
	copy(roots, DefaultRoots)

	return &Config{
		Roots:            roots,
		Workers:          DefaultWorkers,
		Timeout:          DefaultTimeout,
		UserAgent:        DefaultUserAgent,
		MaxBodySize:      DefaultMaxBodySize,
		MaxDepth:         DefaultMaxDepth,
		Retries:          DefaultRetries,
		RetryBackoff:     DefaultRetryBackoff,
		CodexConcurrency: DefaultCodexConcurrency,
		OutputDir:        DefaultOutputDir,
		LogFormat:        LogFormatText,
		SiteConfigs:      &File{Sites: make(map[string]SiteConfig)},
		DBDir:            XDGDataDir(),
		SaveToDB:         true,
	}
}

// XDGDataDir returns the XDG data directory for codexcrawl.
// On Linux: ~/.local/share/codexcrawl
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for codexcrawl.
// On Linux: ~/.config/codexcrawl
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks if the configuration is valid.
// It returns the first problem found.
func (c *Config) Validate() error {
	if len(c.Roots) == 0 {
		return ErrNoRoots
	}

	for _, root := range c.Roots {
		u, err := url.Parse(root)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return &InvalidRootError{Root: root}
		}
	}

	if c.Workers <= 0 {
		return ErrInvalidWorkers
	}

	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}

	if c.MaxDepth < 0 {
		return ErrInvalidMaxDepth
	}

	if c.Retries < 0 {
		return ErrInvalidRetries
	}

	if c.RetryBackoff < 0 {
		return ErrInvalidRetryBackoff
	}

	if c.CodexConcurrency < 0 {
		return ErrInvalidCodexConcurrency
	}

	switch c.LogFormat {
	case LogFormatText, LogFormatJSON:
	default:
		return ErrInvalidLogFormat
	}

	if c.Proxy != "" {
		u, err := url.Parse(c.Proxy)
		if err != nil || u.Host == "" {
			return ErrInvalidProxy
		}
		switch u.Scheme {
		case "socks5", "socks5h", "http", "https":
		default:
			return ErrInvalidProxy
		}
	}

	if c.OutputDir == "" {
		return ErrNoOutputDir
	}

	return nil
}

// ApplyFile overlays the global settings of a config file onto c.
// Zero values in the file leave the current setting untouched.
func (c *Config) ApplyFile(f *File) {
	if f == nil {
		return
	}
	c.SiteConfigs = f
	if len(f.Roots) > 0 {
		c.Roots = append([]string(nil), f.Roots...)
	}
	if f.Workers > 0 {
		c.Workers = f.Workers
	}
	if f.Timeout > 0 {
		c.Timeout = f.Timeout
	}
	if f.UserAgent != "" {
		c.UserAgent = f.UserAgent
	}
	if f.MaxBodySize > 0 {
		c.MaxBodySize = f.MaxBodySize
	}
	if f.MaxDepth > 0 {
		c.MaxDepth = f.MaxDepth
	}
	if f.Retries > 0 {
		c.Retries = f.Retries
	}
	if f.RetryBackoff > 0 {
		c.RetryBackoff = f.RetryBackoff
	}
	if f.CodexConcurrency > 0 {
		c.CodexConcurrency = f.CodexConcurrency
	}
	if f.CompactJSON {
		c.CompactJSON = true
	}
	if f.LogFormat != "" {
		c.LogFormat = f.LogFormat
	}
	c.Selectors = c.Selectors.merge(f.Selectors)
	if f.Proxy != "" {
		c.Proxy = f.Proxy
	}
	if f.OutputDir != "" {
		c.OutputDir = f.OutputDir
	}
}
