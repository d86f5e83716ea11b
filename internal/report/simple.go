package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// SimpleWriter outputs plain text for the terminal.
type SimpleWriter struct {
	baseWriter

	// verbose adds the ranked tables.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose adds the top stocks and top managers tables.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs s.
func (w *SimpleWriter) Write(s *Summary) (int, error) {
	var sb strings.Builder

	sb.WriteString("DATAROMA CRAWL SUMMARY\n")
	sb.WriteString(strings.Repeat("=", 40) + "\n")

	status := "complete"
	switch {
	case s.Partial():
		status = "partial (checkpoint)"
	case s.FromCache:
		status = "complete (from cache)"
	}
	fmt.Fprintf(&sb, "Status:         %s\n", status)
	if s.RunID != "" {
		fmt.Fprintf(&sb, "Run:            %s\n", s.RunID)
	}
	if !s.LastUpdated.IsZero() {
		fmt.Fprintf(&sb, "Last updated:   %s (%s)\n", s.LastUpdated.Format(time.RFC3339), humanize.Time(s.LastUpdated))
	}
	fmt.Fprintf(&sb, "Managers:       %s\n", humanize.Comma(int64(s.Managers)))
	fmt.Fprintf(&sb, "Holdings:       %s\n", humanize.Comma(int64(s.Holdings)))
	fmt.Fprintf(&sb, "Activities:     %s\n", humanize.Comma(int64(s.Activities)))
	fmt.Fprintf(&sb, "Unique tickers: %s\n", humanize.Comma(int64(s.UniqueTickers)))
	fmt.Fprintf(&sb, "Errors:         %d\n", s.Errors)
	if s.DurationSeconds > 0 {
		fmt.Fprintf(&sb, "Duration:       %s\n", time.Duration(s.DurationSeconds*float64(time.Second)).Round(time.Second))
	}
	if s.Fetch.Requests > 0 {
		fmt.Fprintf(&sb, "Requests:       %d (%d retries, %d failures, %d cache hits)\n",
			s.Fetch.Requests, s.Fetch.Retries, s.Fetch.Failures, s.Fetch.CacheHits)
	}
	if s.LatestQuarter != "" {
		fmt.Fprintf(&sb, "Latest quarter: %s\n", s.LatestQuarter)
	}

	if s.TotalActions() > 0 {
		sb.WriteString("\nACTIONS\n")
		for _, a := range s.Actions {
			fmt.Fprintf(&sb, "  %-7s %d\n", a.Action+":", a.Count)
		}
	}

	if w.verbose {
		if len(s.TopStocks) > 0 {
			sb.WriteString("\nMOST HELD STOCKS\n")
			for i, st := range s.TopStocks {
				fmt.Fprintf(&sb, "  %2d. %-6s %-30s %3d owners  $%s\n",
					i+1, st.Symbol, truncateString(st.Company, 30), st.Owners, humanize.CommafWithDigits(st.TotalValue, 0))
			}
		}
		if len(s.TopManagers) > 0 {
			sb.WriteString("\nLARGEST PORTFOLIOS\n")
			for i, m := range s.TopManagers {
				fmt.Fprintf(&sb, "  %2d. %-6s %-30s %4d holdings  $%s\n",
					i+1, m.ID, truncateString(m.Name, 30), m.Holdings, humanize.CommafWithDigits(m.PortfolioValue, 0))
			}
		}
	}

	return io.WriteString(w.output, sb.String())
}

// truncateString truncates a string to maxLen runes with an ellipsis.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
