package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nao1215/dataroma/internal/report"
	"github.com/nao1215/dataroma/internal/store"
)

// NewValidateCmd creates the validate command.
func NewValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the cached dataset for consistency",
		Long: `Validate checks that every cached JSON document parses, that managers,
holdings and activities carry the required fields, and that holdings and
activities only refer to known managers.

Corrupt documents are reported but left in place; use 'dataroma repair'
to fix them. The command exits non-zero when any check fails.`,
		Args: cobra.NoArgs,
		RunE: runValidateCmd,
	}

	cmd.Flags().Float64("tolerance", store.DefaultValueTolerance,
		"Relative value mismatch above which a holding is flagged")
	cmd.Flags().BoolP("json", "j", false, "Output the validation report as JSON")

	return cmd
}

// runValidateCmd executes the validate command.
func runValidateCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := setupLogger(cmd)
	if err != nil {
		return err
	}
	tolerance, err := cmd.Flags().GetFloat64("tolerance")
	if err != nil {
		return err
	}
	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}

	st, err := openStore(cfg, logger)
	if err != nil {
		return err
	}

	result := st.Validate(tolerance)
	out := cmd.OutOrStdout()
	if asJSON {
		if _, err := report.NewJSONWriter(out, report.WithPrettyPrint()).WriteValue(result); err != nil {
			return err
		}
	} else {
		printValidation(out, result)
		fmt.Fprintf(out, "\n%d managers, %d holdings, %d activities\n",
			result.Managers, result.Holdings, result.Activities)
	}

	if !result.OK() {
		return fmt.Errorf("%d of %d checks failed", result.Failed(), len(result.Checks))
	}
	return nil
}
