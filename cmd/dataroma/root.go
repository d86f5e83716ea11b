package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for dataroma.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dataroma",
		Short: "Crawl investment manager portfolios from dataroma.com",
		Long: `dataroma crawls the superinvestor roster, current holdings and quarterly
trade activity published on dataroma.com.

Raw pages are cached on disk so an interrupted crawl resumes cheaply, and
the parsed records are written as JSON documents that other tools can read.
Every crawl is recorded in a local SQLite journal.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().BoolP("quiet", "q", false, "Only log warnings and errors")
	cmd.PersistentFlags().String("log-format", "text", "Log format: text or json")
	cmd.PersistentFlags().StringP("config", "c", "",
		"Configuration file path (default: .dataroma in current or home directory)")
	cmd.PersistentFlags().String("cache-dir", "",
		"Cache directory (default: XDG cache directory)")

	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewStatusCmd())
	cmd.AddCommand(NewValidateCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewEnrichCmd())
	cmd.AddCommand(NewRepairCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
