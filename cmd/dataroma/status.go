package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nao1215/dataroma/internal/report"
	"github.com/nao1215/dataroma/internal/store"
)

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Summarize the cached dataset",
		Long: `Status reads the cached dataset and prints a summary: record counts,
the most widely held stocks, the largest portfolios and the trade actions
of the latest quarter.

A dataset left by an interrupted crawl is reported as partial.

Examples:
  dataroma status
  dataroma status --markdown -o status.md
  dataroma status --json --top 25`,
		Args: cobra.NoArgs,
		RunE: runStatusCmd,
	}
	addReportFlags(cmd)
	return cmd
}

// runStatusCmd executes the status command.
func runStatusCmd(cmd *cobra.Command, _ []string) error {
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

	st, err := openStore(cfg, logger)
	if err != nil {
		return err
	}

	md, err := st.LoadMetadata()
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("no cached dataset in %s (run 'dataroma crawl' first)", st.Dir())
	}
	if err != nil {
		return fmt.Errorf("failed to read metadata: %w", err)
	}

	res, err := st.LoadAll()
	if err != nil {
		return fmt.Errorf("failed to load cached dataset: %w", err)
	}

	return writeSummary(cmd, rf, report.NewSummary(res, md, rf.top))
}
