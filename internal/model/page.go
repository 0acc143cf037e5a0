package model

import (
	"mime"
	"strings"
)

// Page is a fetched listing or article page.
// Body is always UTF-8; the fetcher transcodes it from the declared charset.
type Page struct {
	// URL is the address the page was requested from.
	URL string

	// StatusCode is the HTTP response status code.
	StatusCode int

	// ContentType is the value of the Content-Type response header.
	ContentType string

	// Body is the decoded response body, truncated to the configured limit.
	Body []byte
}

// MediaType returns the lowercased media type without parameters.
func (p *Page) MediaType() string {
	mt, _, err := mime.ParseMediaType(p.ContentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.SplitN(p.ContentType, ";", 2)[0]))
	}
	return mt
}

// IsHTML reports whether the page is HTML. An empty content type is
// treated as HTML since some servers omit the header.
func (p *Page) IsHTML() bool {
	switch p.MediaType() {
	case "", "text/html", "application/xhtml+xml":
		return true
	default:
		return false
	}
}
