// Package main provides the entry point for the dataroma CLI.
//
// dataroma crawls the investment manager roster, holdings and trade
// history published on dataroma.com and keeps them in a local cache.
//
// Usage:
//
//	dataroma crawl
//	dataroma status --markdown
//	dataroma validate
//
// See --help for all available options.
package main

func main() {
	Execute()
}
