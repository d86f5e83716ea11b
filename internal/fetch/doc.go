// Package fetch is the network edge of the crawler.
//
// It provides three layers, each wrapping the previous one:
//   - RateLimiter: minimum spacing between requests
//   - Client: browser-like GET/POST with bounded exponential retry on
//     429/500/502/503/504, timeouts and connection errors
//   - HTMLCache: TTL-checked raw page store keyed by logical path
//
// Expected network failures never surface as Go errors. Every call returns
// a Result whose FailureKind tells the caller whether it got data:
//
//	res := cache.Get(ctx, url, "managers/BRK/holdings.html", true)
//	if !res.OK() {
//	    logger.Warn("no data", "failure", res.Failure, "error", res.Err)
//	    return nil
//	}
package fetch
