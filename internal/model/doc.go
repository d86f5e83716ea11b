// Package model defines the records produced by a crawl and persisted in
// the structured cache.
//
// This package contains the following main types:
//   - Manager: an investment manager from the roster page
//   - Holding: one point-in-time position of a manager
//   - Activity: one disclosed trade in a fiscal quarter
//   - Progress: crawl-run counters
//   - Result: everything one crawl produced
//   - Metadata: the run summary written next to the record collections
//
// The manager code is the join key across Manager, Holding and Activity.
// All types serialize to the snake_case JSON layout of the cache files.
package model
