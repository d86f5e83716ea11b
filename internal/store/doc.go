// Package store is the structured JSON cache of parsed crawl records.
//
// A Store owns one directory:
//
//	managers.json                   all managers
//	holdings.json                   all holdings
//	history.json                    all activities
//	holdings_by_manager/{code}.json per-manager holdings shard
//	history_by_manager/{code}.json  per-manager activity shard
//	stocks.json                     enrichment market data by ticker
//	metadata.json                   run summary, stamped on every write
//	overview.json, last_update.json lightweight summaries for other tools
//
// Every document is written whole, through a temporary file and a rename,
// so readers never see a half-written file. A document that fails to
// decode is moved aside to "<name>.corrupt-<unix>" and reported as
// ErrCorruptCache.
package store
