package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/dataroma/internal/config"
	"github.com/nao1215/dataroma/internal/crawler"
	"github.com/nao1215/dataroma/internal/database"
	"github.com/nao1215/dataroma/internal/enrich"
	"github.com/nao1215/dataroma/internal/fetch"
	"github.com/nao1215/dataroma/internal/pipeline"
	"github.com/nao1215/dataroma/internal/report"
	"github.com/nao1215/dataroma/internal/store"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl managers, holdings and activity into the local cache",
		Long: `Crawl fetches the manager roster, then each manager's holdings page and
paginated activity history, and writes the parsed records to the cache.

A fresh cache from an earlier crawl is reused unless --force is given.
Progress is checkpointed every few managers, so an interrupted crawl keeps
what it already collected and the next run reuses the cached pages.

Examples:
  # Crawl with default settings
  dataroma crawl

  # Ignore the cached dataset and raw pages
  dataroma crawl --force --no-html-cache

  # Crawl, add live prices, and print a Markdown report
  dataroma crawl --enrich --markdown -o report.md`,
		Args: cobra.NoArgs,
		RunE: runCrawlCmd,
	}

	// Network flags
	cmd.Flags().String("base-url", config.DefaultBaseURL,
		"Root URL that roster, holdings and activity pages are resolved against")
	cmd.Flags().Duration("rate-limit", config.DefaultRateLimit,
		"Minimum delay between requests")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each request attempt")
	cmd.Flags().Int("max-retries", config.DefaultMaxRetries,
		"Retries after the first attempt for throttled or failed requests")
	cmd.Flags().Duration("backoff", config.DefaultBackoffFactor,
		"First retry delay; doubles on every further retry")

	// Crawl behavior flags
	cmd.Flags().IntP("max-pages", "p", config.DefaultMaxActivityPages,
		"Maximum activity pages fetched per manager")
	cmd.Flags().Int("checkpoint-every", config.DefaultCheckpointEvery,
		"Managers processed between checkpoints")
	cmd.Flags().Int("progress-every", config.DefaultProgressEvery,
		"Managers processed between progress log lines")

	// Cache flags
	cmd.Flags().Duration("max-cache-age", config.DefaultMaxCacheAge,
		"Age below which a completed cached dataset is reused")
	cmd.Flags().Duration("html-ttl", config.DefaultHTMLCacheTTL,
		"Age below which cached raw pages are reused (0 refetches every page)")
	cmd.Flags().BoolP("force", "f", false,
		"Crawl even when the cached dataset is fresh")
	cmd.Flags().Bool("no-html-cache", false,
		"Always refetch pages (fetched pages are still cached)")
	cmd.Flags().Bool("no-journal", false,
		"Do not record the run in the crawl journal")

	// Enrichment flags
	cmd.Flags().Bool("enrich", false,
		"Add market data after the crawl (needs API keys in the environment)")
	cmd.Flags().String("env-file", ".env",
		"File to load API keys from")
	cmd.Flags().Float64("tolerance", store.DefaultValueTolerance,
		"Relative value mismatch above which validation warns")

	addReportFlags(cmd)

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildCrawlConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	rf, err := getReportFlags(cmd)
	if err != nil {
		return err
	}

	logger, err := setupLogger(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context(), logger)
	defer cancel()

	st, err := openStore(cfg, logger)
	if err != nil {
		return err
	}

	client := fetch.NewClient(
		fetch.WithRateLimit(cfg.RateLimit),
		fetch.WithTimeout(cfg.Timeout),
		fetch.WithMaxRetries(cfg.MaxRetries),
		fetch.WithBackoffFactor(cfg.BackoffFactor),
		fetch.WithUserAgent(cfg.UserAgent),
		fetch.WithLogger(logger),
	)
	pages := fetch.NewHTMLCache(client, cfg.HTMLDir(), cfg.HTMLCacheTTL, fetch.WithCacheLogger(logger))

	opts := []crawler.Option{
		crawler.WithBaseURL(cfg.BaseURL),
		crawler.WithMaxActivityPages(cfg.MaxActivityPages),
		crawler.WithCheckpointPolicy(crawler.CheckpointPolicy{Every: cfg.CheckpointEvery}),
		crawler.WithProgressEvery(cfg.ProgressEvery),
		crawler.WithMaxCacheAge(cfg.MaxCacheAge),
		crawler.WithForceRefresh(cfg.ForceRefresh),
		crawler.WithUseCache(cfg.UseHTMLCache),
		crawler.WithManagerNames(cfg.ManagerNames),
		crawler.WithLogger(logger),
	}

	noJournal, err := cmd.Flags().GetBool("no-journal")
	if err != nil {
		return err
	}
	if !noJournal && cfg.DBDir != "" {
		db, err := database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			// Crawl without a journal.
			logger.Warn("crawl journal unavailable", "dir", cfg.DBDir, "error", err)
		} else {
			defer db.Close()
			logger.Debug("crawl journal opened", "path", db.Path())
			opts = append(opts, crawler.WithJournal(db))
		}
	}

	tolerance, err := cmd.Flags().GetFloat64("tolerance")
	if err != nil {
		return err
	}
	withEnrich, err := cmd.Flags().GetBool("enrich")
	if err != nil {
		return err
	}
	var e enrich.Enricher
	if withEnrich {
		envFile, err := cmd.Flags().GetString("env-file")
		if err != nil {
			return err
		}
		if e, err = buildEnricher(cfg, envFile, logger); err != nil {
			return err
		}
		if e == nil {
			logger.Warn("no market data credentials found, skipping enrichment")
		}
	}

	c := crawler.New(pages, st, opts...)
	p := pipeline.CrawlPipeline(c, st, e, tolerance, pipeline.WithLogger(logger))

	start := time.Now()
	ds := pipeline.NewDataset()
	execErr := p.Execute(ctx, ds)

	requests, retries, failures := client.Stats()
	logger.Info("crawl finished",
		"elapsed", time.Since(start).Round(time.Millisecond),
		"requests", requests,
		"retries", retries,
		"failures", failures,
		"cacheHits", pages.Hits(),
	)

	// A canceled crawl still leaves a checkpoint worth reporting.
	if execErr == nil || len(ds.Result.Managers) > 0 {
		if err := writeSummary(cmd, rf, report.NewSummary(ds.Result, ds.Metadata, rf.top)); err != nil {
			logger.Error("report failed", "error", err)
		}
	}
	if execErr != nil {
		return fmt.Errorf("crawl failed: %w", execErr)
	}

	warnValidation(logger, ds.Validation)
	return nil
}

// buildCrawlConfig layers the crawl flags the user set over the loaded
// configuration. Flags left at their defaults never override the file.
func buildCrawlConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	var errs []error
	set := func(name string, apply func() error) {
		if flags.Changed(name) {
			if err := apply(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	getDuration := func(name string, dst *time.Duration) func() error {
		return func() (err error) {
			*dst, err = flags.GetDuration(name)
			return err
		}
	}
	getInt := func(name string, dst *int) func() error {
		return func() (err error) {
			*dst, err = flags.GetInt(name)
			return err
		}
	}

	set("base-url", func() (err error) {
		cfg.BaseURL, err = flags.GetString("base-url")
		return err
	})
	set("rate-limit", getDuration("rate-limit", &cfg.RateLimit))
	set("timeout", getDuration("timeout", &cfg.Timeout))
	set("backoff", getDuration("backoff", &cfg.BackoffFactor))
	set("max-cache-age", getDuration("max-cache-age", &cfg.MaxCacheAge))
	set("html-ttl", getDuration("html-ttl", &cfg.HTMLCacheTTL))
	set("max-retries", getInt("max-retries", &cfg.MaxRetries))
	set("max-pages", getInt("max-pages", &cfg.MaxActivityPages))
	set("checkpoint-every", getInt("checkpoint-every", &cfg.CheckpointEvery))
	set("progress-every", getInt("progress-every", &cfg.ProgressEvery))
	set("force", func() (err error) {
		cfg.ForceRefresh, err = flags.GetBool("force")
		return err
	})
	set("no-html-cache", func() error {
		noCache, err := flags.GetBool("no-html-cache")
		cfg.UseHTMLCache = !noCache
		return err
	})

	if len(errs) > 0 {
		return nil, errs[0]
	}
	return cfg, nil
}

// warnValidation logs every failed validation check.
func warnValidation(logger *slog.Logger, r *store.ValidationReport) {
	if r == nil || r.OK() {
		return
	}
	for _, c := range r.Checks {
		if !c.Passed {
			logger.Warn("validation check failed", "check", c.Name, "errors", c.Errors)
		}
	}
}
