package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nao1215/dataroma/internal/crawler"
	"github.com/nao1215/dataroma/internal/enrich"
	"github.com/nao1215/dataroma/internal/model"
	"github.com/nao1215/dataroma/internal/store"
)

// LoadStep reads the structured cache into the dataset.
type LoadStep struct {
	store *store.Store
}

// NewLoadStep creates a LoadStep over st.
func NewLoadStep(st *store.Store) *LoadStep {
	return &LoadStep{store: st}
}

// Name returns the step name.
func (s *LoadStep) Name() string {
	return "load"
}

// Do loads every collection and the metadata. A store with no metadata
// has never completed a crawl and fails the step.
func (s *LoadStep) Do(_ context.Context, ds *Dataset) error {
	md, err := s.store.LoadMetadata()
	if err != nil {
		return fmt.Errorf("failed to load metadata: %w", err)
	}
	res, err := s.store.LoadAll()
	if err != nil {
		return fmt.Errorf("failed to load structured cache: %w", err)
	}
	ds.Result = res
	ds.Metadata = md
	return nil
}

// CrawlStep runs a crawl and puts its result in the dataset.
type CrawlStep struct {
	crawler *crawler.Crawler
	store   *store.Store
}

// NewCrawlStep creates a CrawlStep. st is the store c writes to; it is read
// back for the metadata of the finished run.
func NewCrawlStep(c *crawler.Crawler, st *store.Store) *CrawlStep {
	return &CrawlStep{crawler: c, store: st}
}

// Name returns the step name.
func (s *CrawlStep) Name() string {
	return "crawl"
}

// Do runs the crawl. On cancellation the partial result is still placed
// in the dataset before the error is returned.
func (s *CrawlStep) Do(ctx context.Context, ds *Dataset) error {
	res, err := s.crawler.Run(ctx)
	if res != nil {
		ds.Result = res
	}
	if err != nil {
		return err
	}

	md, err := s.store.LoadMetadata()
	switch {
	case errors.Is(err, store.ErrNotFound):
		// An empty roster writes nothing.
	case err != nil:
		return fmt.Errorf("failed to load metadata: %w", err)
	default:
		ds.Metadata = md
	}
	return nil
}

// EnrichStep merges market data into the dataset's holdings.
type EnrichStep struct {
	enricher enrich.Enricher
	logger   *slog.Logger
}

// EnrichStepOption configures an EnrichStep.
type EnrichStepOption func(*EnrichStep)

// WithEnrichLogger sets a custom logger for the enrich step.
func WithEnrichLogger(logger *slog.Logger) EnrichStepOption {
	return func(s *EnrichStep) {
		s.logger = logger
	}
}

// NewEnrichStep creates an EnrichStep over e.
func NewEnrichStep(e enrich.Enricher, opts ...EnrichStepOption) *EnrichStep {
	s := &EnrichStep{enricher: e, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *EnrichStep) Name() string {
	return "enrich"
}

// Do looks up every held ticker. Provider errors are logged and whatever
// data was returned is still merged; only cancellation fails the step.
func (s *EnrichStep) Do(ctx context.Context, ds *Dataset) error {
	tickers := model.Tickers(ds.Result.Holdings, nil)
	if len(tickers) == 0 {
		return nil
	}

	data, err := s.enricher.Enrich(ctx, tickers)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil {
		s.logger.Warn("enrichment incomplete", "error", err)
	}

	ds.Enriched = enrich.Merge(ds.Result.Holdings, data)
	s.logger.Info("enriched holdings",
		"tickers", len(tickers),
		"found", len(data),
		"holdings", ds.Enriched,
	)
	return nil
}

// SaveStep writes the dataset back to the structured cache.
type SaveStep struct {
	store *store.Store
}

// NewSaveStep creates a SaveStep over st.
func NewSaveStep(st *store.Store) *SaveStep {
	return &SaveStep{store: st}
}

// Name returns the step name.
func (s *SaveStep) Name() string {
	return "save"
}

// Do persists the result, keeping the dataset's metadata counters.
func (s *SaveStep) Do(ctx context.Context, ds *Dataset) error {
	md, err := s.store.SaveResult(ctx, ds.Result, ds.Metadata)
	if err != nil {
		return fmt.Errorf("failed to save: %w", err)
	}
	ds.Metadata = md
	return nil
}

// ValidateStep checks the structured cache for consistency.
type ValidateStep struct {
	store     *store.Store
	tolerance float64
}

// NewValidateStep creates a ValidateStep. tolerance is the value deviation
// allowed before a holding is flagged.
func NewValidateStep(st *store.Store, tolerance float64) *ValidateStep {
	return &ValidateStep{store: st, tolerance: tolerance}
}

// Name returns the step name.
func (s *ValidateStep) Name() string {
	return "validate"
}

// Do runs every check and attaches the report. Failed checks are reported
// on the dataset, not returned as an error.
func (s *ValidateStep) Do(_ context.Context, ds *Dataset) error {
	report := s.store.Validate(s.tolerance)
	ds.Validation = &report
	return nil
}

// EnrichPipeline builds load, enrich, save and validate over st.
func EnrichPipeline(st *store.Store, e enrich.Enricher, tolerance float64, opts ...Option) *Pipeline {
	p := New(opts...)
	p.AddSteps(
		NewLoadStep(st),
		NewEnrichStep(e, WithEnrichLogger(p.logger)),
		NewSaveStep(st),
		NewValidateStep(st, tolerance),
	)
	return p
}

// CrawlPipeline builds crawl followed by validate. A non-nil e adds
// enrich and save between them.
func CrawlPipeline(c *crawler.Crawler, st *store.Store, e enrich.Enricher, tolerance float64, opts ...Option) *Pipeline {
	p := New(opts...)
	p.AddStep(NewCrawlStep(c, st))
	if e != nil {
		p.AddSteps(NewEnrichStep(e, WithEnrichLogger(p.logger)), NewSaveStep(st))
	}
	p.AddStep(NewValidateStep(st, tolerance))
	return p
}
