// Package crawler drives one crawl of the dataroma manager pages.
//
// A Crawler walks the roster, then each manager in roster order: the
// holdings page, the first activity page and as many further activity
// pages as the pager advertises (up to a cap). Records accumulate in
// memory and are persisted to the structured cache every K managers
// according to a CheckpointPolicy, and once more at the end of the run.
//
// Failures below the manager level never stop the run. A failed fetch is
// counted in Progress.ErrorsEncountered and yields no records for that
// page; pagination for a manager stops at the first failed page. Run
// returns an error only when the context is canceled or the cache cannot
// be written.
//
// # Usage
//
//	c := crawler.New(htmlCache, st,
//		crawler.WithCheckpointPolicy(crawler.CheckpointPolicy{Every: 10}),
//		crawler.WithJournal(db),
//	)
//	res, err := c.Run(ctx)
package crawler
