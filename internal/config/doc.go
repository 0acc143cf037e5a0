// Package config provides configuration structures and utilities for codexcrawl.
// It defines the crawl settings (roots, worker ceiling, timeouts), the
// YAML config file with per-host request settings, and XDG directory lookup.
package config
