// Package report writes crawl results.
//
//   - JSONSink: one <id>.json per codex plus all_codexes.json
//   - MarkdownSink: one <id>.md outline per codex plus a README.md index
//   - MultiSink: fans results out to several sinks
//   - SummaryWriter: a plain-text table for the terminal
package report
