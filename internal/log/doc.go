// Package log provides slog construction for the crawler with automatic
// redaction of enrichment credentials.
//
// The RedactingHandler masks:
//   - credential headers (Authorization, Cookie, APCA-API-KEY-ID, APCA-API-SECRET-KEY)
//   - attributes whose key names a secret (apikey, token, password)
//   - secret query parameters inside logged URLs (apikey=..., token=...)
//
// # Usage
//
//	logger := log.NewLogger(os.Stderr, log.LevelFor(verbose, quiet))
//	logger.Info("fetched", "url", "https://www.alphavantage.co/query?function=OVERVIEW&apikey=XYZ")
//	// url=https://www.alphavantage.co/query?apikey=%2A%2A%2AREDACTED%2A%2A%2A&function=OVERVIEW
package log
