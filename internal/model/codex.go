package model

import (
	"encoding/json"
	"net/url"
	"strings"
	"time"
)

// CodexResult is the crawled tree of one codex root.
type CodexResult struct {
	// ID is the last non-empty path segment of URL (e.g. "gk").
	ID string

	// URL is the root listing page the tree was crawled from.
	URL string

	// Structure holds the top-level nodes in listing order.
	// It is empty when the root could not be fetched or parsed.
	Structure []Node

	// CrawledAt is when the crawl of this root finished. Not serialized.
	CrawledAt time.Time

	// Elapsed is the wall time spent on this root. Not serialized.
	Elapsed time.Duration

	// Err records an unexpected failure that aborted the crawl of this root.
	// The Structure is empty in that case. Not serialized.
	Err error
}

// NewCodexResult creates an empty result for a root URL.
func NewCodexResult(rootURL string) *CodexResult {
	return &CodexResult{
		ID:        CodexID(rootURL),
		URL:       rootURL,
		Structure: []Node{},
	}
}

// Stats walks the structure and returns its counters.
func (r *CodexResult) Stats() Stats {
	return ComputeStats(r.Structure)
}

type codexJSON struct {
	Codex     string            `json:"codex"`
	URL       string            `json:"url"`
	Structure []json.RawMessage `json:"structure"`
}

// MarshalJSON writes {"codex","url","structure"}.
func (r CodexResult) MarshalJSON() ([]byte, error) {
	structure, err := marshalNodes(r.Structure)
	if err != nil {
		return nil, err
	}
	return marshalJSON(codexJSON{Codex: r.ID, URL: r.URL, Structure: structure})
}

// UnmarshalJSON decodes a result written by MarshalJSON.
func (r *CodexResult) UnmarshalJSON(data []byte) error {
	var c codexJSON
	if err := json.Unmarshal(data, &c); err != nil {
		return err
	}
	nodes, err := unmarshalNodes(c.Structure)
	if err != nil {
		return err
	}
	r.ID = c.Codex
	r.URL = c.URL
	r.Structure = nodes
	return nil
}

// Outcome holds one result per submitted root, in submission order.
type Outcome []*CodexResult

// Stats returns the counters summed over every result.
func (o Outcome) Stats() Stats {
	var total Stats
	for _, r := range o {
		if r == nil {
			continue
		}
		total = total.Add(r.Stats())
	}
	return total
}

// CodexID derives a codex identifier from its root URL: the last
// non-empty path segment. The host is used when the path is empty,
// and the raw input when it is not a URL at all.
func CodexID(rootURL string) string {
	u, err := url.Parse(rootURL)
	if err != nil {
		return lastSegment(rootURL)
	}
	if id := lastSegment(u.Path); id != "" {
		return id
	}
	if u.Host != "" {
		return u.Host
	}
	return lastSegment(rootURL)
}

func lastSegment(p string) string {
	segments := strings.Split(p, "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if segments[i] != "" {
			return segments[i]
		}
	}
	return ""
}
