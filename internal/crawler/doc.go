// Package crawler expands a codex root page into a tree of sections,
// chapters and articles.
//
// # Concurrency
//
// Every listed entry is crawled in its own goroutine, and the results are
// written into a slice pre-sized to the listing, so siblings keep their
// listing order whatever order they finish in. Concurrency is bounded by
// a single weighted semaphore (the gate) that can be shared by any number
// of crawlers. A slot is held only around one HTTP request.
//
// # Failures
//
// Nothing in a crawl is fatal. A failed article fetch yields the
// model.ContentFetchError sentinel, a failed section fetch yields a
// section without children, and a panic in one entry degrades only that
// entry. A section that lists one of its own ancestors is not fetched
// again and also ends up without children.
//
// # Usage
//
//	gate := semaphore.NewWeighted(20)
//	c := crawler.New(fetcher, parser.NewLawTreeParser(), crawler.WithGate(gate))
//	nodes := c.Crawl(ctx, "https://www.zakonrf.info/gk/")
package crawler
