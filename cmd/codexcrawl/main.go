// Package main provides the entry point for the codexcrawl CLI.
//
// codexcrawl downloads the hierarchical structure and article texts of
// legal codexes published on zakonrf.info and writes them as JSON.
//
// Usage:
//
//	codexcrawl
//	codexcrawl https://www.zakonrf.info/gk/ https://www.zakonrf.info/uk/
//	codexcrawl compare gk
//
// See --help for all available options.
package main

func main() {
	Execute()
}
