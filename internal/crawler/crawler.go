package crawler

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nao1215/dataroma/internal/config"
	"github.com/nao1215/dataroma/internal/fetch"
	"github.com/nao1215/dataroma/internal/model"
	"github.com/nao1215/dataroma/internal/parser"
	"github.com/nao1215/dataroma/internal/store"
)

// Fetcher returns the page at rawURL, cached under key.
// fetch.HTMLCache implements it.
type Fetcher interface {
	Get(ctx context.Context, rawURL, key string, useCache bool) fetch.Result
}

// Journal records the life of a run. database.CrawlDB implements it.
// Journal errors are logged and never stop a crawl.
type Journal interface {
	StartRun(ctx context.Context, runID string, startedAt time.Time) error
	RecordCheckpoint(ctx context.Context, runID string, p model.Progress, at time.Time) error
	RecordFetch(ctx context.Context, runID string, ev model.FetchEvent) error
	FinishRun(ctx context.Context, runID string, status model.RunStatus, p model.Progress, finishedAt time.Time) error
}

// CheckpointPolicy saves accumulated records every Every managers.
// Every <= 0 disables intermediate checkpoints.
type CheckpointPolicy struct {
	Every int
}

// Due reports whether a checkpoint is due after processed managers.
func (p CheckpointPolicy) Due(processed int) bool {
	return p.Every > 0 && processed > 0 && processed%p.Every == 0
}

// Crawler runs crawls. It holds configuration only; every Run starts
// from fresh counters.
type Crawler struct {
	fetcher Fetcher
	store   *store.Store
	parser  *parser.Parser
	journal Journal
	names   config.ManagerNames
	logger  *slog.Logger

	baseURL          string
	maxActivityPages int
	checkpoint       CheckpointPolicy
	progressEvery    int
	maxCacheAge      time.Duration
	forceRefresh     bool
	useCache         bool

	now   func() time.Time
	newID func() string
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithBaseURL sets the site root that page paths are resolved against.
func WithBaseURL(u string) Option {
	return func(c *Crawler) {
		c.baseURL = u
	}
}

// WithMaxActivityPages caps the activity pages fetched per manager.
func WithMaxActivityPages(n int) Option {
	return func(c *Crawler) {
		c.maxActivityPages = n
	}
}

// WithCheckpointPolicy sets the checkpoint cadence.
func WithCheckpointPolicy(p CheckpointPolicy) Option {
	return func(c *Crawler) {
		c.checkpoint = p
	}
}

// WithProgressEvery sets how often, in managers, aggregate counts are logged.
func WithProgressEvery(n int) Option {
	return func(c *Crawler) {
		c.progressEvery = n
	}
}

// WithMaxCacheAge sets how old the structured cache may be before a run
// re-crawls instead of loading it.
func WithMaxCacheAge(d time.Duration) Option {
	return func(c *Crawler) {
		c.maxCacheAge = d
	}
}

// WithForceRefresh skips the structured cache check.
func WithForceRefresh(force bool) Option {
	return func(c *Crawler) {
		c.forceRefresh = force
	}
}

// WithUseCache controls whether raw pages may be served from the HTML cache.
func WithUseCache(use bool) Option {
	return func(c *Crawler) {
		c.useCache = use
	}
}

// WithJournal records runs, checkpoints and fetches.
func WithJournal(j Journal) Option {
	return func(c *Crawler) {
		c.journal = j
	}
}

// WithManagerNames sets the display-name table applied to roster entries.
func WithManagerNames(names config.ManagerNames) Option {
	return func(c *Crawler) {
		c.names = names
	}
}

// WithParser replaces the page parser.
func WithParser(p *parser.Parser) Option {
	return func(c *Crawler) {
		c.parser = p
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Crawler) {
		c.logger = l
	}
}

// WithClock sets the clock used for progress timing.
func WithClock(now func() time.Time) Option {
	return func(c *Crawler) {
		c.now = now
	}
}

// New creates a Crawler that fetches through fetcher and persists to st.
func New(fetcher Fetcher, st *store.Store, opts ...Option) *Crawler {
	c := &Crawler{
		fetcher:          fetcher,
		store:            st,
		baseURL:          config.DefaultBaseURL,
		maxActivityPages: config.DefaultMaxActivityPages,
		checkpoint:       CheckpointPolicy{Every: config.DefaultCheckpointEvery},
		progressEvery:    config.DefaultProgressEvery,
		maxCacheAge:      config.DefaultMaxCacheAge,
		useCache:         true,
		now:              time.Now,
		newID:            uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.parser == nil {
		c.parser = parser.New(parser.WithLogger(c.logger), parser.WithClock(c.now))
	}
	if c.maxActivityPages < 1 {
		c.maxActivityPages = 1
	}
	return c
}
