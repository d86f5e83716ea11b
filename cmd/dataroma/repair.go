package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// NewRepairCmd creates the repair command.
func NewRepairCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repair [file...]",
		Short: "Recover corrupt cache documents",
		Long: `Repair attempts to recover cached JSON documents that failed to parse.

Corrupt documents are moved aside when a load finds them. Repair fixes the
JSON syntax of each moved-aside copy, checks that the result has the
expected shape, and restores it in place.

Without arguments every quarantined document is repaired. With arguments
only the named documents (relative to the cache) are repaired.

Examples:
  dataroma repair
  dataroma repair holdings.json`,
		Args: cobra.ArbitraryArgs,
		RunE: runRepairCmd,
	}
}

// runRepairCmd executes the repair command.
func runRepairCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
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

	names := args
	if len(names) == 0 {
		if names, err = st.Quarantined(); err != nil {
			return fmt.Errorf("failed to list quarantined documents: %w", err)
		}
	}

	out := cmd.OutOrStdout()
	if len(names) == 0 {
		fmt.Fprintln(out, "Nothing to repair.")
		return nil
	}

	var errs []error
	for _, name := range names {
		res, err := st.Repair(name)
		if err != nil {
			logger.Error("repair failed", "file", name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		status := "restored"
		if res.Changed {
			status = "repaired and restored"
		}
		fmt.Fprintf(out, "%s: %s as %s\n", res.Source, status, res.Restored)
	}
	return errors.Join(errs...)
}
