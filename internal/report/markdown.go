package report

import (
	"io"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
)

// MarkdownWriter outputs summaries as GitHub-flavored Markdown.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// Write outputs s.
func (w *MarkdownWriter) Write(s *Summary) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, s)
	w.writeActions(md, s)
	w.writeTopStocks(md, s)
	w.writeTopManagers(md, s)

	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Generated by dataroma on %s*", time.Now().UTC().Format("2006-01-02"))

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, s *Summary) {
	md.H1("Dataroma Crawl Summary")
	md.PlainText("")

	rows := [][]string{
		{"Managers", humanize.Comma(int64(s.Managers))},
		{"Holdings", humanize.Comma(int64(s.Holdings))},
		{"Activities", humanize.Comma(int64(s.Activities))},
		{"Unique tickers", humanize.Comma(int64(s.UniqueTickers))},
		{"Errors", strconv.Itoa(s.Errors)},
	}
	if s.RunID != "" {
		rows = append([][]string{{"Run", "`" + s.RunID + "`"}}, rows...)
	}
	if !s.LastUpdated.IsZero() {
		rows = append(rows, []string{"Last updated", s.LastUpdated.Format("2006-01-02 15:04:05 MST")})
	}
	if s.LatestQuarter != "" {
		rows = append(rows, []string{"Latest quarter", s.LatestQuarter})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")

	switch {
	case s.Partial():
		md.Warningf("This data comes from a checkpoint of an unfinished run (%d managers so far).", s.Managers)
	case s.Errors > 0:
		md.Importantf("%d page(s) could not be fetched; some managers may be incomplete.", s.Errors)
	case s.FromCache:
		md.Note("Served from the structured cache without crawling.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeActions(md *markdown.Markdown, s *Summary) {
	md.H2("Activity")
	md.PlainText("")

	if s.TotalActions() == 0 {
		md.PlainText("No activity recorded.")
		md.PlainText("")
		return
	}

	rows := make([][]string, 0, len(s.Actions))
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Action mix"),
		piechart.WithShowData(true),
	)
	for _, a := range s.Actions {
		rows = append(rows, []string{a.Action.String(), strconv.Itoa(a.Count)})
		if a.Count > 0 {
			chart.LabelAndIntValue(a.Action.String(), uint64(a.Count)) //nolint:gosec // counts are non-negative
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Action", "Count"},
		Rows:   rows,
	})
	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeTopStocks(md *markdown.Markdown, s *Summary) {
	if len(s.TopStocks) == 0 {
		return
	}
	md.H2("Most Held Stocks")
	md.PlainText("")

	rows := make([][]string, len(s.TopStocks))
	for i, st := range s.TopStocks {
		rows[i] = []string{
			st.Symbol,
			truncateString(st.Company, 40),
			strconv.Itoa(st.Owners),
			"$" + humanize.CommafWithDigits(st.TotalValue, 0),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Ticker", "Company", "Owners", "Total value"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeTopManagers(md *markdown.Markdown, s *Summary) {
	if len(s.TopManagers) == 0 {
		return
	}
	md.H2("Largest Portfolios")
	md.PlainText("")

	rows := make([][]string, len(s.TopManagers))
	for i, m := range s.TopManagers {
		firm := m.Firm
		if firm == "" {
			firm = "-"
		}
		rows[i] = []string{
			"`" + m.ID + "`",
			m.Name,
			firm,
			strconv.Itoa(m.Holdings),
			"$" + humanize.CommafWithDigits(m.PortfolioValue, 0),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Code", "Manager", "Firm", "Holdings", "Portfolio value"},
		Rows:   rows,
	})
	md.PlainText("")
}
