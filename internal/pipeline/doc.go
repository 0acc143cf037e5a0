// Package pipeline runs codex crawls.
//
// A Pipeline applies a list of Steps (crawl, then stats) to one
// model.CodexResult. A Runner executes one fresh pipeline per root URL
// concurrently, keeps results in submission order and hands them to a
// Sink as they complete.
package pipeline
