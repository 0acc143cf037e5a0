// Package model defines the core data structures used throughout codexcrawl.
//
// This package contains the following main types:
//   - NodeDescriptor: A child entry listed on a codex table-of-contents page
//   - Node: The tagged union of Article (leaf) and Section (internal node)
//   - CodexResult: The crawled tree of one codex root
//   - Outcome: The ordered collection of CodexResults for one run
//   - Page: A fetched HTML page
//   - Stats: Counters derived by walking a tree
//
// The models are serializable to JSON in the layout consumed by downstream
// tooling ({"codex","url","structure"} with "type"-tagged nodes) and can be
// decoded back for database storage and crawl comparison.
package model
