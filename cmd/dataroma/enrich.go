package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/dataroma/internal/config"
	"github.com/nao1215/dataroma/internal/enrich"
	"github.com/nao1215/dataroma/internal/fetch"
	"github.com/nao1215/dataroma/internal/pipeline"
	"github.com/nao1215/dataroma/internal/report"
	"github.com/nao1215/dataroma/internal/store"
)

// overviewRateLimit spaces Alpha Vantage requests to stay inside the free
// tier's per-minute quota.
const overviewRateLimit = 12 * time.Second

// NewEnrichCmd creates the enrich command.
func NewEnrichCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Add market data to cached holdings",
		Long: `Enrich loads the cached holdings, looks up every ticker with the
configured market data providers, and saves the merged result.

Providers are chosen from the credentials found in the environment or the
env file:
  APCA_API_KEY_ID, APCA_API_SECRET_KEY   Alpaca latest trade and 52-week range
  ALPHAVANTAGE_API_KEY                   Alpha Vantage company overview

Values a provider leaves empty never overwrite what the cache holds.

Examples:
  # Enrich with keys from .env
  dataroma enrich

  # Use a different env file
  dataroma enrich --env-file ~/.config/dataroma/keys.env`,
		Args: cobra.NoArgs,
		RunE: runEnrichCmd,
	}

	cmd.Flags().String("env-file", ".env", "File to load API keys from")
	cmd.Flags().Int("workers", enrich.DefaultWorkers, "Concurrent Alpaca lookups")
	cmd.Flags().Float64("tolerance", store.DefaultValueTolerance,
		"Relative value mismatch above which validation warns")
	addReportFlags(cmd)

	return cmd
}

// runEnrichCmd executes the enrich command.
func runEnrichCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	rf, err := getReportFlags(cmd)
	if err != nil {
		return err
	}
	logger, err := setupLogger(cmd)
	if err != nil {
		return err
	}

	envFile, err := cmd.Flags().GetString("env-file")
	if err != nil {
		return err
	}
	workers, err := cmd.Flags().GetInt("workers")
	if err != nil {
		return err
	}
	tolerance, err := cmd.Flags().GetFloat64("tolerance")
	if err != nil {
		return err
	}

	e, err := buildEnricher(cfg, envFile, logger, enrich.WithAlpacaWorkers(workers))
	if err != nil {
		return err
	}
	if e == nil {
		return fmt.Errorf("no market data credentials found in the environment or %s", envFile)
	}

	st, err := openStore(cfg, logger)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context(), logger)
	defer cancel()

	ds := pipeline.NewDataset()
	if err := pipeline.EnrichPipeline(st, e, tolerance, pipeline.WithLogger(logger)).Execute(ctx, ds); err != nil {
		return fmt.Errorf("enrich failed: %w", err)
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Enriched %d holdings\n", ds.Enriched)
	warnValidation(logger, ds.Validation)
	return writeSummary(cmd, rf, report.NewSummary(ds.Result, ds.Metadata, rf.top))
}

// buildEnricher chains the providers the credentials allow, Alpaca first.
// It returns a nil Enricher when no provider is configured.
func buildEnricher(cfg *config.Config, envFile string, logger *slog.Logger, alpacaOpts ...enrich.AlpacaOption) (enrich.Enricher, error) {
	creds, err := config.LoadCredentials(envFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	var providers []enrich.Enricher
	if creds.HasAlpaca() {
		opts := append([]enrich.AlpacaOption{enrich.WithAlpacaLogger(logger)}, alpacaOpts...)
		providers = append(providers, enrich.NewAlpacaEnricher(enrich.NewAlpacaClient(creds), opts...))
	}
	if creds.HasAlphaVantage() {
		client := fetch.NewClient(
			fetch.WithRateLimit(max(cfg.RateLimit, overviewRateLimit)),
			fetch.WithTimeout(cfg.Timeout),
			fetch.WithMaxRetries(cfg.MaxRetries),
			fetch.WithBackoffFactor(cfg.BackoffFactor),
			fetch.WithLogger(logger),
		)
		providers = append(providers, enrich.NewOverviewEnricher(client, creds.AlphaVantageKey,
			enrich.WithOverviewLogger(logger)))
	}

	if len(providers) == 0 {
		return nil, nil
	}
	logger.Debug("market data providers configured", "count", len(providers))
	return enrich.NewChain(logger, providers...), nil
}
