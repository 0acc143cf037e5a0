// Package database stores crawl history in SQLite (modernc.org/sqlite,
// no cgo).
//
// Every codex crawl is saved as one row holding the serialized tree and
// its stats, and every run links the crawls it produced. The compare
// command reads the two most recent crawls of a codex back to diff them.
package database
