package crawler

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/nao1215/dataroma/internal/fetch"
	"github.com/nao1215/dataroma/internal/model"
	"github.com/nao1215/dataroma/internal/parser"
	"github.com/nao1215/dataroma/internal/store"
)

// run is the mutable state of one Run call.
type run struct {
	id       string
	result   *model.Result
	progress model.Progress
	fetches  model.FetchStats
}

// Run performs one crawl.
//
// If the structured cache is younger than the max cache age and refresh
// is not forced, the cached records are returned and nothing is fetched.
// An empty roster ends the run with an empty result and no error.
// Otherwise every manager is crawled in roster order and the full record
// set is persisted before Run returns.
//
// On context cancellation the records gathered so far are checkpointed
// and returned together with the context error.
func (c *Crawler) Run(ctx context.Context) (*model.Result, error) {
	r := &run{
		id:       c.newID(),
		result:   model.NewResult(),
		progress: model.NewProgress(c.now()),
	}

	if cached, ok, err := c.loadFresh(); err != nil {
		return nil, err
	} else if ok {
		c.startRun(ctx, r)
		r.progress = cached.Progress
		c.finishRun(ctx, r, model.RunCached)
		c.logger.Info("structured cache is fresh, skipping crawl",
			"managers", len(cached.Managers),
			"holdings", len(cached.Holdings),
			"activities", len(cached.Activities),
		)
		return cached, nil
	}

	c.startRun(ctx, r)
	c.logger.Info("starting crawl", "run_id", r.id, "base_url", c.baseURL)

	managers := c.fetchRoster(ctx, r)
	if len(managers) == 0 {
		if err := ctx.Err(); err != nil {
			c.finishRun(ctx, r, model.RunCanceled)
			return r.result, err
		}
		c.logger.Warn("no managers found on roster page, aborting run")
		// A failed roster request is kept in the fetch stats only.
		r.progress.ErrorsEncountered = 0
		r.result.Progress = r.progress
		c.finishRun(ctx, r, model.RunEmpty)
		return r.result, nil
	}
	c.logger.Info("found managers", "count", len(managers))

	for i := range managers {
		if err := ctx.Err(); err != nil {
			return c.abort(r, err)
		}

		m := managers[i]
		holdings, activities := c.crawlManager(ctx, r, &m)
		if err := ctx.Err(); err != nil {
			// The manager may be incomplete; leave it for the next run.
			return c.abort(r, err)
		}

		r.result.Managers = append(r.result.Managers, m)
		r.result.Holdings = append(r.result.Holdings, holdings...)
		r.result.Activities = append(r.result.Activities, activities...)
		r.progress.ManagersProcessed++
		r.progress.HoldingsFound += len(holdings)
		r.progress.ActivitiesFound += len(activities)

		processed := r.progress.ManagersProcessed
		if c.progressEvery > 0 && processed%c.progressEvery == 0 {
			c.logger.Info("crawl progress",
				"managers", fmt.Sprintf("%d/%d", processed, len(managers)),
				"holdings", r.progress.HoldingsFound,
				"activities", r.progress.ActivitiesFound,
				"errors", r.progress.ErrorsEncountered,
			)
		}

		if c.checkpoint.Due(processed) {
			if err := c.persist(ctx, r, true); err != nil {
				c.finishRun(context.WithoutCancel(ctx), r, model.RunFailed)
				return r.result, err
			}
		}
	}

	if err := c.persist(ctx, r, false); err != nil {
		c.finishRun(context.WithoutCancel(ctx), r, model.RunFailed)
		return r.result, err
	}
	c.finishRun(ctx, r, model.RunCompleted)

	c.logger.Info("crawl complete",
		"managers", r.progress.ManagersProcessed,
		"holdings", r.progress.HoldingsFound,
		"activities", r.progress.ActivitiesFound,
		"unique_tickers", r.result.UniqueTickers,
		"errors", r.progress.ErrorsEncountered,
		"duration", r.progress.Elapsed(),
	)
	return r.result, nil
}

// loadFresh returns the cached result when the store is fresh enough.
// A corrupt document turns the cache check into a miss.
func (c *Crawler) loadFresh() (*model.Result, bool, error) {
	if c.forceRefresh || c.store == nil || !c.store.IsValid(c.maxCacheAge) {
		return nil, false, nil
	}
	res, err := c.store.LoadAll()
	if errors.Is(err, store.ErrCorruptCache) {
		c.logger.Warn("structured cache is corrupt, crawling again", "error", err)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load structured cache: %w", err)
	}
	return res, true, nil
}

// abort checkpoints what a canceled run gathered and returns it.
func (c *Crawler) abort(r *run, cause error) (*model.Result, error) {
	ctx := context.Background()
	c.logger.Warn("crawl canceled, writing checkpoint", "managers", r.progress.ManagersProcessed, "error", cause)
	if err := c.persist(ctx, r, true); err != nil {
		c.finishRun(ctx, r, model.RunFailed)
		return r.result, errors.Join(cause, err)
	}
	c.finishRun(ctx, r, model.RunCanceled)
	return r.result, cause
}

// fetchRoster returns the managers on the roster page with display names
// resolved.
func (c *Crawler) fetchRoster(ctx context.Context, r *run) []model.Manager {
	res := c.get(ctx, r, c.rosterURL(), rosterKey)
	if !res.OK() {
		return nil
	}
	managers := c.parser.ParseManagerRoster(res.Body)
	for i := range managers {
		managers[i].Name = c.names.Resolve(managers[i].ID, managers[i].Name)
	}
	return managers
}

// crawlManager fetches and parses one manager's holdings and activity
// history. It fills m's holdings count and portfolio value.
func (c *Crawler) crawlManager(ctx context.Context, r *run, m *model.Manager) ([]model.Holding, []model.Activity) {
	logger := c.logger.With("manager", m.ID)

	var holdings []model.Holding
	if res := c.get(ctx, r, c.holdingsURL(m.ID), holdingsKey(m.ID)); res.OK() {
		holdings = c.parser.ParseHoldings(res.Body, m.ID)
	}

	m.NumHoldings = len(holdings)
	m.PortfolioValue = portfolioValue(holdings)
	if m.URL == "" {
		m.URL = c.holdingsURL(m.ID)
	}

	res := c.get(ctx, r, c.activityURL(m.ID, 1), activityKey(m.ID, 1))
	if !res.OK() {
		return holdings, nil
	}
	activities := c.parser.ParseActivities(res.Body, m.ID)

	total := min(parser.ParseTotalPages(res.Body), c.maxActivityPages)
	for page := 2; page <= total; page++ {
		res := c.get(ctx, r, c.activityURL(m.ID, page), activityKey(m.ID, page))
		if !res.OK() {
			logger.Warn("stopping activity pagination", "page", page, "of", total)
			break
		}
		activities = append(activities, c.parser.ParseActivities(res.Body, m.ID)...)
	}

	logger.Debug("crawled manager", "holdings", len(holdings), "activities", len(activities), "pages", total)
	return holdings, activities
}

// get fetches one page, counting failures and logging the request to the
// journal.
func (c *Crawler) get(ctx context.Context, r *run, rawURL, key string) fetch.Result {
	res := c.fetcher.Get(ctx, rawURL, key, c.useCache)

	r.fetches.Requests++
	r.fetches.Retries += res.Retries
	if res.FromCache {
		r.fetches.CacheHits++
	}

	ev := model.FetchEvent{
		URL:        rawURL,
		CacheKey:   key,
		StatusCode: res.StatusCode,
		Retries:    res.Retries,
		FromCache:  res.FromCache,
		At:         c.now(),
	}
	if res.Failure == fetch.FailureCanceled {
		return res
	}
	if !res.OK() {
		r.fetches.Failures++
		r.progress.ErrorsEncountered++
		ev.Failure = res.Failure.String()
		c.logger.Warn("fetch failed", "url", rawURL, "failure", res.Failure, "status", res.StatusCode, "error", res.Cause())
	}

	if c.journal != nil {
		if err := c.journal.RecordFetch(context.WithoutCancel(ctx), r.id, ev); err != nil {
			c.logger.Warn("failed to journal fetch", "error", err)
		}
	}
	return res
}

// persist writes the records gathered so far and the run metadata.
func (c *Crawler) persist(ctx context.Context, r *run, checkpoint bool) error {
	r.progress.Touch(c.now())
	r.result.Progress = r.progress
	r.result.UniqueTickers = len(model.Tickers(r.result.Holdings, r.result.Activities))

	if c.store == nil {
		return nil
	}

	md := model.Metadata{
		NumManagers:   len(r.result.Managers),
		NumHoldings:   len(r.result.Holdings),
		NumActivities: len(r.result.Activities),
		UniqueStocks:  len(model.Tickers(r.result.Holdings, nil)),
		Progress:      r.progress,
		Checkpoint:    checkpoint,
		RunID:         r.id,
		Fetch:         r.fetches,
	}
	if _, err := c.store.SaveResult(context.WithoutCancel(ctx), r.result, md); err != nil {
		return fmt.Errorf("failed to save crawl results: %w", err)
	}

	if checkpoint {
		c.logger.Info("checkpoint saved", "managers", md.NumManagers, "holdings", md.NumHoldings, "activities", md.NumActivities)
		if c.journal != nil {
			if err := c.journal.RecordCheckpoint(context.WithoutCancel(ctx), r.id, r.progress, c.now()); err != nil {
				c.logger.Warn("failed to journal checkpoint", "error", err)
			}
		}
	}
	return nil
}

func (c *Crawler) startRun(ctx context.Context, r *run) {
	if c.journal == nil {
		return
	}
	if err := c.journal.StartRun(context.WithoutCancel(ctx), r.id, r.progress.StartTime); err != nil {
		c.logger.Warn("failed to journal run start", "error", err)
	}
}

func (c *Crawler) finishRun(ctx context.Context, r *run, status model.RunStatus) {
	if c.journal == nil {
		return
	}
	if err := c.journal.FinishRun(context.WithoutCancel(ctx), r.id, status, r.progress, c.now()); err != nil {
		c.logger.Warn("failed to journal run finish", "error", err)
	}
}

// portfolioValue sums holding values exactly.
func portfolioValue(holdings []model.Holding) float64 {
	total := decimal.Zero
	for _, h := range holdings {
		total = total.Add(decimal.NewFromFloat(h.Value))
	}
	return total.InexactFloat64()
}
