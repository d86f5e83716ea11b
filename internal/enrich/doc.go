// Package enrich adds market data to scraped holdings.
//
// Holdings scraped from the source carry the price that was current when
// the page was rendered. An Enricher looks up fresher quotes and company
// facts from a market data provider; Merge folds them into holdings
// without overwriting known values with unknown ones.
//
// Providers:
//   - AlpacaEnricher: latest trade price and 52-week range from daily bars.
//   - OverviewEnricher: market cap, sector and industry from the Alpha
//     Vantage OVERVIEW endpoint.
//
// Chain queries several providers and keeps the first non-zero value of
// each field. Partial coverage is normal; tickers a provider does not know
// are simply missing from its result.
package enrich
