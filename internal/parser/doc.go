// Package parser turns fetched codex pages into child descriptors and
// article paragraphs. It performs no I/O.
package parser
