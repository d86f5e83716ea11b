// Package database provides the SQLite crawl journal.
//
// The journal stores:
//   - one row per crawl run with its status and final counters
//   - the checkpoints written during a run
//   - every page request a run made, with status, retries and cache use
//
// SQLite (via modernc.org/sqlite) keeps the journal in a single CGO-free
// file next to the cache. WAL mode lets `dataroma history` read while a
// crawl is writing.
package database
