package config

import (
	"maps"
	"net/url"
	"strings"
	"time"
)

// SiteConfig holds per-host request settings.
type SiteConfig struct {
	// Cookie is sent as the Cookie header to this host.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are extra HTTP headers sent to this host.
	Headers map[string]string `yaml:"headers,omitempty"`

	// IgnorePatterns are URL path globs whose entries are left out of the tree.
	IgnorePatterns []string `yaml:"ignorePatterns,omitempty"`
}

// Selectors names the page markup of a codex site. Empty fields keep
// the built-in zakonrf.info markup.
type Selectors struct {
	// Tree selects the listing container on section pages.
	Tree string `yaml:"tree,omitempty"`

	// Item selects one entry inside the listing.
	Item string `yaml:"item,omitempty"`

	// ArticleClass and SectionClass are the entry classes marking an
	// article or a section. Any other entry is a chapter.
	ArticleClass string `yaml:"article_class,omitempty"`
	SectionClass string `yaml:"section_class,omitempty"`

	// Body selects the article text container.
	Body string `yaml:"body,omitempty"`

	// Paragraph selects the text blocks inside Body.
	Paragraph string `yaml:"paragraph,omitempty"`

	// SkipClass marks blocks left out of the article text.
	SkipClass string `yaml:"skip_class,omitempty"`
}

// merge returns s with every non-empty field of o applied over it.
func (s Selectors) merge(o Selectors) Selectors {
	for _, f := range []struct{ dst, src *string }{
		{&s.Tree, &o.Tree},
		{&s.Item, &o.Item},
		{&s.ArticleClass, &o.ArticleClass},
		{&s.SectionClass, &o.SectionClass},
		{&s.Body, &o.Body},
		{&s.Paragraph, &o.Paragraph},
		{&s.SkipClass, &o.SkipClass},
	} {
		if *f.src != "" {
			*f.dst = *f.src
		}
	}
	return s
}

// File represents the structure of the .codexcrawl configuration file.
type File struct {
	// Roots replaces the default codex list when non-empty.
	Roots []string `yaml:"roots,omitempty"`

	Workers          int           `yaml:"workers,omitempty"`
	Timeout          time.Duration `yaml:"timeout,omitempty"`
	UserAgent        string        `yaml:"user_agent,omitempty"`
	MaxBodySize      int64         `yaml:"max_body_size,omitempty"`
	MaxDepth         int           `yaml:"max_depth,omitempty"`
	Retries          int           `yaml:"retries,omitempty"`
	RetryBackoff     time.Duration `yaml:"retry_backoff,omitempty"`
	CodexConcurrency int           `yaml:"codex_concurrency,omitempty"`
	Proxy            string        `yaml:"proxy,omitempty"`
	OutputDir        string        `yaml:"output_dir,omitempty"`
	CompactJSON      bool          `yaml:"compact_json,omitempty"`
	LogFormat        string        `yaml:"log_format,omitempty"`

	// Selectors override the markup the parser looks for.
	Selectors Selectors `yaml:"selectors,omitempty"`

	// Sites maps host names (e.g. "www.zakonrf.info") to their settings.
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults applies to every host unless overridden in Sites.
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// GetSiteConfig returns the configuration for a host merged over the defaults.
// A leading "www." is ignored when the exact host is not listed.
func (cf *File) GetSiteConfig(host string) SiteConfig {
	if cf == nil {
		return SiteConfig{}
	}

	result := cf.Defaults
	if len(cf.Defaults.Headers) > 0 {
		result.Headers = maps.Clone(cf.Defaults.Headers)
	}

	site, ok := cf.Sites[host]
	if !ok {
		site, ok = cf.Sites[strings.TrimPrefix(host, "www.")]
	}
	if !ok {
		return result
	}

	if site.Cookie != "" {
		result.Cookie = site.Cookie
	}
	if len(site.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string)
		}
		maps.Copy(result.Headers, site.Headers)
	}
	if len(site.IgnorePatterns) > 0 {
		result.IgnorePatterns = site.IgnorePatterns
	}

	return result
}

// SiteFor returns the merged configuration for the host of rawURL.
func (cf *File) SiteFor(rawURL string) SiteConfig {
	u, err := url.Parse(rawURL)
	if err != nil {
		return cf.GetSiteConfig("")
	}
	return cf.GetSiteConfig(u.Hostname())
}
