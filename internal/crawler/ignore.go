package crawler

import (
	"net/url"
	"path/filepath"
	"strings"

	"github.com/nao1215/codexcrawl/internal/model"
)

// filter drops descriptors whose URL path matches an ignore pattern of its host.
func (c *Crawler) filter(descriptors []model.NodeDescriptor) []model.NodeDescriptor {
	if c.sites == nil {
		return descriptors
	}

	kept := make([]model.NodeDescriptor, 0, len(descriptors))
	for _, d := range descriptors {
		if c.ignored(d.URL) {
			c.skipped.Add(1)
			c.logger.Debug("skipping ignored entry", "url", d.URL)
			continue
		}
		kept = append(kept, d)
	}
	return kept
}

func (c *Crawler) ignored(rawURL string) bool {
	patterns := c.sites.SiteFor(rawURL).IgnorePatterns
	if len(patterns) == 0 {
		return false
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := u.Path
	if path == "" {
		path = "/"
	}

	for _, pattern := range patterns {
		if matchPattern(pattern, path) {
			return true
		}
	}
	return false
}

// matchPattern reports whether a URL path matches a glob.
//
//   - "/prefix/*" matches the prefix itself and everything below it
//   - "*.ext" matches any path ending in .ext
//   - anything else is a filepath.Match glob over the whole path
func matchPattern(pattern, path string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
		if path == prefix || path == prefix+"/" || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}

	if ext, ok := strings.CutPrefix(pattern, "*."); ok {
		if strings.HasSuffix(path, "."+ext) {
			return true
		}
	}

	matched, err := filepath.Match(pattern, path)
	return err == nil && matched
}
