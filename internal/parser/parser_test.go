package parser

import (
	"bytes"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/html"
)

func quietParser() *Parser {
	return New(WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

// TestParseManagerRoster tests roster extraction, splitting and dedupe.
func TestParseManagerRoster(t *testing.T) {
	t.Parallel()

	page := `<html><body><ul id="port_body">
<li><a href="/m/holdings.php?m=BRK">Warren Buffett - Berkshire Hathaway Updated 14 Nov 2024</a></li>
<li><a href="/m/holdings.php?m=GLRE">David Einhorn - Greenlight Capital</a></li>
<li><a href="/m/holdings.php?m=BRK">Warren Buffett - again</a></li>
<li><a href="/m/holdings.php?m=SOLO">Solo Investor</a></li>
<li><a href="/m/home.php">Home</a></li>
</ul></body></html>`

	got := quietParser().ParseManagerRoster(page)
	if len(got) != 3 {
		t.Fatalf("expected 3 managers, got %d: %+v", len(got), got)
	}

	want := []struct{ id, name, firm string }{
		{"BRK", "Warren Buffett", "Berkshire Hathaway"},
		{"GLRE", "David Einhorn", "Greenlight Capital"},
		{"SOLO", "Solo Investor", ""},
	}
	for i, w := range want {
		if got[i].ID != w.id || got[i].Name != w.name || got[i].Firm != w.firm {
			t.Errorf("manager %d = %+v, want %+v", i, got[i], w)
		}
	}
}

// TestParseManagerRoster_Empty tests that a page without links yields an empty slice.
func TestParseManagerRoster_Empty(t *testing.T) {
	t.Parallel()

	got := quietParser().ParseManagerRoster("<html><body><p>maintenance</p></body></html>")
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", got)
	}
}

const holdingsPage = `<html><body>
<div id="p2">Period: Q3 2024<br>Portfolio date: 30 Sep 2024</div>
<table id="grid">
<thead><tr><th></th><th>Stock</th><th>% of Portfolio</th><th>Recent Activity</th><th>Shares</th><th>Reported Price</th><th>Value</th><th></th><th>Current Price</th><th>+/-</th><th>52 Week Low</th><th>52 Week High</th></tr></thead>
<tbody>
<tr><td class="hist"><a href="/m/hist/hist.php?f=BRK&amp;s=AAPL">&equiv;</a></td><td class="stock"><a href="/m/stock.php?sym=AAPL">AAPL<span> - Apple Inc.</span></a></td><td>26.24</td><td>Reduce 25.00%</td><td>300,000,000</td><td>$233.00</td><td>$69,900,000,000</td><td></td><td>$236.00</td><td>1.29%</td><td>$164.08</td><td>$237.49</td></tr>
<tr><td class="stock"><a href="/m/stock.php?sym=KO">KO<span> - Coca-Cola Co.</span></a></td><td>9.32</td><td></td><td>400,000,000</td><td>$71.86</td><td>$28,744,000,000</td><td></td><td>$70.00</td><td>-2.59%</td><td>$57.93</td><td>$73.53</td></tr>
<tr><td class="hist"></td><td class="stock">no link here</td><td>1.00</td><td></td><td>10</td><td>$1.00</td><td>$10</td><td></td><td>$1.00</td><td>0%</td><td>$1.00</td><td>$1.00</td></tr>
<tr><td class="stock"><a href="/m/stock.php?sym=KO">KO<span> - Coca-Cola Co.</span></a></td><td>9.32</td><td></td><td>1</td><td>$1</td><td>$1</td><td></td><td>$1</td><td>0%</td><td>$1</td><td>$1</td></tr>
</tbody></table></body></html>`

// TestParseHoldings tests per-row history detection and column decoding.
func TestParseHoldings(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	p := New(WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))

	got := p.ParseHoldings(holdingsPage, "BRK")
	if len(got) != 2 {
		t.Fatalf("expected 2 holdings, got %d: %+v", len(got), got)
	}

	aapl := got[0]
	if aapl.Symbol != "AAPL" || aapl.CompanyName != "Apple Inc." || aapl.ManagerID != "BRK" {
		t.Errorf("unexpected identity: %+v", aapl)
	}
	if aapl.Percentage != 26.24 || aapl.Shares != 300000000 || aapl.ReportedPrice != 233 {
		t.Errorf("unexpected leading columns: %+v", aapl)
	}
	if aapl.Value != 69900000000 || aapl.CurrentPrice != 236 || aapl.PriceChangePercent != 1.29 {
		t.Errorf("unexpected value columns: %+v", aapl)
	}
	if aapl.Week52Low != 164.08 || aapl.Week52High != 237.49 {
		t.Errorf("unexpected 52 week range: %+v", aapl)
	}
	if aapl.RecentActivity != "Reduce 25.00%" {
		t.Errorf("unexpected activity: %q", aapl.RecentActivity)
	}
	if aapl.ReportingQuarter != "Q3 2024" || aapl.ReportingDate != "30 Sep 2024" {
		t.Errorf("unexpected reporting info: %q %q", aapl.ReportingQuarter, aapl.ReportingDate)
	}

	ko := got[1]
	if ko.Symbol != "KO" || ko.Shares != 400000000 || ko.CurrentPrice != 70 || ko.PriceChangePercent != -2.59 {
		t.Errorf("unexpected row without history cell: %+v", ko)
	}

	for _, h := range got {
		if !h.ConsistentValue(0.05) {
			t.Errorf("%s: value does not match shares*current price", h.Symbol)
		}
	}

	out := logs.String()
	if !strings.Contains(out, "skipping holding row without ticker") {
		t.Errorf("expected warning for row without ticker, logs: %s", out)
	}
	if !strings.Contains(out, "skipping duplicate holding") {
		t.Errorf("expected warning for duplicate row, logs: %s", out)
	}
}

// TestParseHoldings_FallbackTable tests locating a table by its headers.
func TestParseHoldings_FallbackTable(t *testing.T) {
	t.Parallel()

	page := `<table><tr><td>menu</td></tr></table>
<table><tr><th>Stock</th><th>% of Portfolio</th><th>Activity</th><th>Shares</th><th>Price</th><th>Value</th></tr>
<tr><td><a href="stock.php?sym=MSFT">MSFT<span> - Microsoft</span></a></td><td>5</td><td>Buy</td><td>1,000</td><td>$400</td><td>$400,000</td></tr></table>`

	p := quietParser()
	p.now = func() time.Time { return time.Date(2025, 5, 10, 0, 0, 0, 0, time.UTC) }

	got := p.ParseHoldings(page, "X")
	if len(got) != 1 || got[0].Symbol != "MSFT" || got[0].Value != 400000 {
		t.Fatalf("unexpected holdings: %+v", got)
	}
	if got[0].ReportingQuarter != "Q2 2025" {
		t.Errorf("expected clock quarter fallback, got %q", got[0].ReportingQuarter)
	}
	if got[0].CurrentPrice != 0 {
		t.Errorf("expected missing current price to be 0, got %v", got[0].CurrentPrice)
	}
}

// TestParseHoldings_NoTable tests a page without any table.
func TestParseHoldings_NoTable(t *testing.T) {
	t.Parallel()

	if got := quietParser().ParseHoldings("<p>nothing</p>", "X"); len(got) != 0 {
		t.Errorf("expected no holdings, got %+v", got)
	}
}

// group renders one five-cell activity group as bare cells.
func group(sym, action, shares, pct string) string {
	return `<td class="hist"><a href="/m/hist/hist.php?s=` + sym + `">&equiv;</a></td>` +
		`<td class="stock"><a href="/m/stock.php?sym=` + sym + `">` + sym + `<span> - ` + sym + ` Corp</span></a></td>` +
		`<td class="buy">` + action + `</td><td>` + shares + `</td><td>` + pct + `</td>`
}

func header(label string) string {
	return `<tr class="q_chg"><td colspan="5"><b>` + label + `</b></td></tr>`
}

func activityPage(body string) string {
	return `<html><body><table id="grid"><thead><tr><th>History</th><th>Stock</th><th>Activity</th><th>Share change</th><th>% change to portfolio</th></tr></thead><tbody>` +
		body + `</tbody></table></body></html>`
}

// TestParseActivities tests quarter carry-forward across bare cell groups.
func TestParseActivities(t *testing.T) {
	t.Parallel()

	page := activityPage(
		header("Q2 2019") +
			group("AAPL", "Add 12.30%", "1,000", "0.50") +
			group("KO", "Reduce 5.00%", "-2,000", "0.10") +
			group("XOM", "Buy", "300", "0.20") +
			header("Q1 2019") +
			group("IBM", "Sold All", "-5,000", "1.20"))

	got := quietParser().ParseActivities(page, "BRK")
	if len(got) != 4 {
		t.Fatalf("expected 4 activities, got %d: %+v", len(got), got)
	}

	for _, a := range got[:3] {
		if a.Date != "Q2 2019" {
			t.Errorf("%s: expected Q2 2019, got %q", a.Symbol, a.Date)
		}
	}
	if got[3].Date != "Q1 2019" {
		t.Errorf("expected IBM in Q1 2019, got %q", got[3].Date)
	}

	first := got[0]
	if first.Symbol != "AAPL" || first.CompanyName != "AAPL Corp" || first.ManagerID != "BRK" {
		t.Errorf("unexpected identity: %+v", first)
	}
	if first.ActionType.String() != "Add" || first.PercentageChange != 12.3 || first.Shares != 1000 || first.PortfolioPercentage != 0.5 {
		t.Errorf("unexpected decoded cells: %+v", first)
	}
	if got[1].Shares != -2000 || got[1].ActionType.String() != "Reduce" {
		t.Errorf("unexpected reduce row: %+v", got[1])
	}
	if got[3].ActionType.String() != "Sell" {
		t.Errorf("expected Sell, got %s", got[3].ActionType)
	}
}

// TestParseActivities_EdgeCases tests undated, partial and interrupted groups.
func TestParseActivities_EdgeCases(t *testing.T) {
	t.Parallel()

	partial := `<td class="hist"></td><td><a href="/m/stock.php?sym=ZZ">ZZ</a></td><td>Buy</td>`

	tests := []struct {
		name    string
		body    string
		symbols []string
	}{
		{
			name:    "group before any header is dropped",
			body:    group("XOM", "Buy", "1", "1"),
			symbols: nil,
		},
		{
			name:    "trailing partial group is dropped",
			body:    header("Q2 2019") + partial,
			symbols: nil,
		},
		{
			name:    "complete group then trailing partial",
			body:    header("Q2 2019") + group("AAPL", "Buy", "1", "1") + partial,
			symbols: []string{"AAPL"},
		},
		{
			name:    "header discards partial group",
			body:    header("Q2 2019") + partial + header("Q1 2019") + group("KO", "Buy", "1", "1"),
			symbols: []string{"KO"},
		},
		{
			name:    "unreadable header stops dating",
			body:    header("Q2 2019") + group("AAPL", "Buy", "1", "1") + header("Summary") + group("KO", "Buy", "1", "1"),
			symbols: []string{"AAPL"},
		},
		{
			name:    "groups wrapped in rows",
			body:    header("Q4 2020") + "<tr>" + group("MSFT", "Add 1%", "1", "1") + "</tr>",
			symbols: []string{"MSFT"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := quietParser().ParseActivities(activityPage(tt.body), "BRK")
			var symbols []string
			for _, a := range got {
				symbols = append(symbols, a.Symbol)
				if a.Date == "" {
					t.Errorf("%s: activity without quarter", a.Symbol)
				}
			}
			if !reflect.DeepEqual(symbols, tt.symbols) {
				t.Errorf("expected %v, got %v", tt.symbols, symbols)
			}
		})
	}
}

// TestParseActivities_Deterministic tests that re-parsing yields identical output.
func TestParseActivities_Deterministic(t *testing.T) {
	t.Parallel()

	page := activityPage(header("Q3 2023") + group("AAPL", "Buy", "10", "1") + group("KO", "Add 3%", "5", "2"))
	p := quietParser()

	first := p.ParseActivities(page, "BRK")
	second := p.ParseActivities(page, "BRK")
	if !reflect.DeepEqual(first, second) {
		t.Errorf("expected identical results:\n%+v\n%+v", first, second)
	}
}

// TestParseActivities_NoTable tests a page without the grid table.
func TestParseActivities_NoTable(t *testing.T) {
	t.Parallel()

	if got := quietParser().ParseActivities("<html></html>", "BRK"); len(got) != 0 {
		t.Errorf("expected no activities, got %+v", got)
	}
}

// TestActivityScanner tests the scanner transitions directly.
func TestActivityScanner(t *testing.T) {
	t.Parallel()

	var labels []string
	s := newActivityScanner(func(label string, cells []*html.Node) {
		if len(cells) != activityGroupSize {
			t.Errorf("expected %d cells, got %d", activityGroupSize, len(cells))
		}
		labels = append(labels, label)
	})
	cell := func(n int) {
		for range n {
			s.cell(&html.Node{Type: html.ElementNode, Data: "td"})
		}
	}

	cell(5)
	if s.state != stateNoQuarter {
		t.Fatalf("expected %s, got %s", stateNoQuarter, s.state)
	}
	s.header("Q4 2021")
	if s.state != stateInQuarter {
		t.Fatalf("expected %s, got %s", stateInQuarter, s.state)
	}
	cell(10)
	s.header("Q3 2021")
	cell(7)

	if dropped := s.finish(); dropped != 7 {
		t.Errorf("expected 7 dropped cells, got %d", dropped)
	}
	want := []string{"Q4 2021", "Q4 2021", "Q3 2021"}
	if !reflect.DeepEqual(labels, want) {
		t.Errorf("expected %v, got %v", want, labels)
	}
}

// TestParseTotalPages tests pager discovery.
func TestParseTotalPages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		page string
		want int
	}{
		{
			name: "pager with several pages",
			page: `<div id="pages"><a href="m_activity.php?m=BRK&amp;typ=a&amp;L=2&amp;o=a">2</a><a href="m_activity.php?m=BRK&amp;typ=a&amp;L=7&amp;o=a">7</a><a href="m_activity.php?m=BRK&amp;typ=a&amp;L=3&amp;o=a">3</a></div>`,
			want: 7,
		},
		{name: "no pager", page: `<p>one page</p>`, want: 1},
		{name: "links outside pager are ignored", page: `<a href="x.php?L=9">9</a>`, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ParseTotalPages(tt.page); got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

// TestParseReportingInfo tests period and date extraction.
func TestParseReportingInfo(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 11, 2, 0, 0, 0, 0, time.UTC)

	info := ParseReportingInfo("Period: Q3 2024 Portfolio date: 30 Sep 2024", now)
	if info.Quarter != "Q3 2024" || info.Date != "30 Sep 2024" {
		t.Errorf("unexpected info: %+v", info)
	}

	info = ParseReportingInfo("Updated Nov 14, 2024", now)
	if info.Quarter != "Q4 2025" || info.Date != "Nov 14, 2024" {
		t.Errorf("unexpected fallback info: %+v", info)
	}
}
