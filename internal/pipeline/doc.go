// Package pipeline runs the steps that follow or replace a crawl:
// loading the structured cache, crawling, enriching holdings with market
// data, saving and validating.
//
// Each step receives the Dataset built by the steps before it. A step
// returns an error only when later steps cannot run meaningfully; the
// pipeline either stops there or, with WithContinueOnError, records the
// error on the dataset and moves on.
package pipeline
