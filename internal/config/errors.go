package config

import (
	"errors"
	"fmt"
)

// Configuration validation errors returned by Config.Validate().
var (
	// ErrNoRoots is returned when neither the config file nor the
	// command line leaves any root to crawl.
	ErrNoRoots = errors.New("no codex roots specified")

	// ErrInvalidRoot is wrapped by InvalidRootError.
	ErrInvalidRoot = errors.New("invalid codex root: must be an absolute http(s) URL")

	// ErrInvalidWorkers is returned when the worker count is not positive.
	ErrInvalidWorkers = errors.New("invalid workers: must be positive")

	// ErrInvalidTimeout is returned when the timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrInvalidMaxDepth is returned when the max depth is negative.
	ErrInvalidMaxDepth = errors.New("invalid max depth: must be non-negative")

	// ErrInvalidRetries is returned when the retry count is negative.
	ErrInvalidRetries = errors.New("invalid retries: must be non-negative")

	// ErrInvalidRetryBackoff is returned when the retry backoff is negative.
	ErrInvalidRetryBackoff = errors.New("invalid retry backoff: must be non-negative")

	// ErrInvalidCodexConcurrency is returned when the codex concurrency is negative.
	ErrInvalidCodexConcurrency = errors.New("invalid codex concurrency: must be non-negative")

	// ErrInvalidLogFormat is returned for a log format other than text or json.
	ErrInvalidLogFormat = errors.New("invalid log format: expected text or json")

	// ErrInvalidProxy is returned for a proxy that is not a socks5 or http URL.
	ErrInvalidProxy = errors.New("invalid proxy: expected socks5://host:port or http://host:port")

	// ErrNoOutputDir is returned when the output directory is empty.
	ErrNoOutputDir = errors.New("output directory must not be empty")
)

// InvalidRootError reports which root failed validation.
type InvalidRootError struct {
	Root string
}

func (e *InvalidRootError) Error() string {
	return fmt.Sprintf("%s: %q", ErrInvalidRoot, e.Root)
}

func (e *InvalidRootError) Unwrap() error {
	return ErrInvalidRoot
}
