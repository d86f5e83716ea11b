package main

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nao1215/dataroma/internal/database"
	"github.com/nao1215/dataroma/internal/model"
	"github.com/nao1215/dataroma/internal/report"
)

// defaultHistoryLimit is the number of runs listed when --limit is not set.
const defaultHistoryLimit = 20

// runDetail is the JSON shape of 'history <run-id>'.
type runDetail struct {
	Run         database.Run          `json:"run"`
	Checkpoints []database.Checkpoint `json:"checkpoints"`
	Fetch       model.FetchStats      `json:"fetch"`
}

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show past crawl runs from the journal",
		Long: `History lists crawl runs recorded in the local SQLite journal, newest
first. With a run ID it shows that run's checkpoints and fetch counters.

Examples:
  # List the last 20 runs
  dataroma history

  # Show one run in detail
  dataroma history 0b6f6a1e-...

  # Machine-readable output
  dataroma history --json --limit 5`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().BoolP("json", "j", false, "Output JSON")
	cmd.Flags().IntP("limit", "n", defaultHistoryLimit, "Maximum number of runs listed")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}

	db, err := database.Open(cfg.DBDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open crawl journal: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if len(args) == 0 {
		runs, err := db.ListRuns(ctx, limit)
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}
		if asJSON {
			_, err := report.NewJSONWriter(out, report.WithPrettyPrint()).WriteValue(runs)
			return err
		}
		printRuns(out, runs, time.Now())
		return nil
	}

	run, err := db.GetRun(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to read run: %w", err)
	}
	if run == nil {
		return fmt.Errorf("no run with ID %s", args[0])
	}
	checkpoints, err := db.ListCheckpoints(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("failed to list checkpoints: %w", err)
	}
	stats, err := db.FetchSummary(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("failed to summarize fetches: %w", err)
	}

	if asJSON {
		_, err := report.NewJSONWriter(out, report.WithPrettyPrint()).
			WriteValue(runDetail{Run: *run, Checkpoints: checkpoints, Fetch: stats})
		return err
	}

	fmt.Fprintf(out, "Run %s\n\n", run.ID)
	fmt.Fprintf(out, "  Status:     %s\n", run.Status)
	fmt.Fprintf(out, "  Started:    %s\n", run.StartedAt.Local().Format(time.DateTime))
	if run.Finished() {
		fmt.Fprintf(out, "  Finished:   %s (%.1fs)\n", run.FinishedAt.Local().Format(time.DateTime), run.DurationSeconds)
	}
	fmt.Fprintf(out, "  Managers:   %s\n", humanize.Comma(int64(run.Managers)))
	fmt.Fprintf(out, "  Holdings:   %s\n", humanize.Comma(int64(run.Holdings)))
	fmt.Fprintf(out, "  Activities: %s\n", humanize.Comma(int64(run.Activities)))
	fmt.Fprintf(out, "  Errors:     %d\n", run.Errors)
	fmt.Fprintf(out, "  Requests:   %d (%d failed, %d from cache)\n\n",
		stats.Requests, stats.Failures, stats.CacheHits)

	if len(checkpoints) == 0 {
		fmt.Fprintln(out, "No checkpoints recorded.")
		return nil
	}
	fmt.Fprintf(out, "Checkpoints (%d):\n\n", len(checkpoints))
	fmt.Fprintf(out, "  %-20s  %8s  %8s  %10s  %6s\n", "Time", "Managers", "Holdings", "Activities", "Errors")
	for _, cp := range checkpoints {
		fmt.Fprintf(out, "  %-20s  %8d  %8d  %10d  %6d\n",
			cp.CreatedAt.Local().Format(time.DateTime),
			cp.ManagersProcessed, cp.Holdings, cp.Activities, cp.Errors)
	}
	return nil
}

// printRuns writes one line per run.
func printRuns(w io.Writer, runs []database.Run, now time.Time) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No crawl runs recorded.")
		return
	}

	fmt.Fprintf(w, "Crawl runs (%d):\n\n", len(runs))
	fmt.Fprintf(w, "  %-36s  %-10s  %-16s  %8s  %8s  %6s\n", "ID", "Status", "Started", "Managers", "Holdings", "Errors")
	for _, r := range runs {
		fmt.Fprintf(w, "  %-36s  %-10s  %-16s  %8d  %8d  %6d\n",
			r.ID, r.Status, humanize.RelTime(r.StartedAt, now, "ago", "from now"),
			r.Managers, r.Holdings, r.Errors)
	}
}
