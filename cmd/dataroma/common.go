package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nao1215/dataroma/internal/config"
	dlog "github.com/nao1215/dataroma/internal/log"
	"github.com/nao1215/dataroma/internal/report"
	"github.com/nao1215/dataroma/internal/store"
)

// getBoolFlag retrieves a boolean flag from the command or the root's
// persistent flags.
func getBoolFlag(cmd *cobra.Command, name string) bool {
	v, err := cmd.Flags().GetBool(name)
	if err != nil {
		v, err = cmd.Root().PersistentFlags().GetBool(name)
		if err != nil {
			return false
		}
	}
	return v
}

// getStringFlag retrieves a string flag from the command or the root's
// persistent flags.
func getStringFlag(cmd *cobra.Command, name string) string {
	v, err := cmd.Flags().GetString(name)
	if err != nil {
		v, err = cmd.Root().PersistentFlags().GetString(name)
		if err != nil {
			return ""
		}
	}
	return v
}

// loadConfig builds a Config from defaults, the configuration file and the
// persistent flags shared by every command.
// If the user explicitly names a config file that does not exist, that is an
// error; otherwise a missing file is silently ignored.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()
	cfg.ConfigFilePath = getStringFlag(cmd, "config")
	cfg.Verbose = getBoolFlag(cmd, "verbose")

	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case configPath != "":
		file, err := config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		if err := file.Apply(cfg); err != nil {
			return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
		}
	case cfg.ConfigFilePath != "":
		return nil, fmt.Errorf("configuration file not found: %s", cfg.ConfigFilePath)
	}

	if dir := getStringFlag(cmd, "cache-dir"); dir != "" {
		cfg.CacheDir = dir
	}
	return cfg, nil
}

// setupLogger creates the structured logger selected by the persistent
// flags. Logs always go to stderr so reports on stdout stay clean.
func setupLogger(cmd *cobra.Command) (*slog.Logger, error) {
	level := dlog.LevelFor(getBoolFlag(cmd, "verbose"), getBoolFlag(cmd, "quiet"))
	switch format := getStringFlag(cmd, "log-format"); format {
	case "", "text":
		return dlog.NewLogger(cmd.ErrOrStderr(), level), nil
	case "json":
		return dlog.NewJSONLogger(cmd.ErrOrStderr(), level), nil
	default:
		return nil, fmt.Errorf("unknown log format %q (want text or json)", format)
	}
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext(parent context.Context, logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			logger.Info("received shutdown signal, cancelling...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// openStore opens the structured cache under cfg.
func openStore(cfg *config.Config, logger *slog.Logger) (*store.Store, error) {
	st, err := store.New(cfg.JSONDir(), store.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to open cache %s: %w", cfg.JSONDir(), err)
	}
	return st, nil
}

// reportFlags are the output flags shared by commands that print a summary.
type reportFlags struct {
	json     bool
	markdown bool
	output   string
	top      int
}

// addReportFlags registers the output flags on cmd.
func addReportFlags(cmd *cobra.Command) {
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
	cmd.Flags().Int("top", report.DefaultTopN,
		"Number of stocks and managers listed in the report")
	cmd.MarkFlagsMutuallyExclusive("json", "markdown")
}

// getReportFlags reads the flags registered by addReportFlags.
func getReportFlags(cmd *cobra.Command) (reportFlags, error) {
	var (
		rf  reportFlags
		err error
	)
	if rf.json, err = cmd.Flags().GetBool("json"); err != nil {
		return rf, err
	}
	if rf.markdown, err = cmd.Flags().GetBool("markdown"); err != nil {
		return rf, err
	}
	if rf.output, err = cmd.Flags().GetString("output"); err != nil {
		return rf, err
	}
	if rf.top, err = cmd.Flags().GetInt("top"); err != nil {
		return rf, err
	}
	if rf.json && rf.markdown {
		return rf, errors.New("--json and --markdown are mutually exclusive")
	}
	return rf, nil
}

// openOutput returns the report destination: path if set, else stdout.
// The returned close function is always safe to call.
func openOutput(path string, stdout io.Writer) (io.Writer, func() error, error) {
	if path == "" {
		return stdout, func() error { return nil }, nil
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // User-provided output path is intentional
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, f.Close, nil
}

// writeSummary renders s in the format selected by rf.
func writeSummary(cmd *cobra.Command, rf reportFlags, s *report.Summary) error {
	out, closeOut, err := openOutput(rf.output, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	var w report.Writer
	switch {
	case rf.json:
		w = report.NewJSONWriter(out, report.WithPrettyPrint())
	case rf.markdown:
		w = report.NewMarkdownWriter(out)
	default:
		w = report.NewSimpleWriter(out, report.WithVerbose(getBoolFlag(cmd, "verbose")))
	}

	_, werr := w.Write(s)
	return errors.Join(werr, closeOut())
}

// printValidation writes a one-line-per-check summary of a validation
// report to w.
func printValidation(w io.Writer, r store.ValidationReport) {
	for _, c := range r.Checks {
		status := "ok"
		if !c.Passed {
			status = "FAILED"
		}
		fmt.Fprintf(w, "%-20s %s\n", c.Name, status)
		for _, e := range c.Errors {
			fmt.Fprintf(w, "  error: %s\n", e)
		}
		for _, warn := range c.Warnings {
			fmt.Fprintf(w, "  warning: %s\n", warn)
		}
	}
}
