package parser

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/nao1215/dataroma/internal/model"
)

// Holdings column offsets relative to the stock cell. Offset 6 is a
// spacer column with no data.
const (
	colPercent    = 1
	colActivity   = 2
	colShares     = 3
	colReported   = 4
	colValue      = 5
	colCurrent    = 7
	colChange     = 8
	colWeek52Low  = 9
	colWeek52High = 10

	// minHoldingCells is the number of cells after the stock cell a row
	// needs to carry a value.
	minHoldingCells = colValue + 1
)

var (
	periodPattern = regexp.MustCompile(`Period:\s*(Q[1-4])\s+(\d{4})`)
	datePatterns  = []*regexp.Regexp{
		regexp.MustCompile(`Portfolio date:\s*(\d{1,2} \w+ \d{4})`),
		regexp.MustCompile(`Updated (\w+ \d+, \d{4})`),
		regexp.MustCompile(`As of (\w+ \d+, \d{4})`),
	}
	headerWords = []string{"stock", "shares", "value", "portfolio"}
)

// ReportingInfo is the filing period a holdings page describes.
type ReportingInfo struct {
	// Date is the filing date as printed, or "" when the page has none.
	Date string
	// Quarter is "Q# YYYY".
	Quarter string
}

// ParseReportingInfo reads the filing period from holdings page text.
// When the page does not state a period, the calendar quarter of now is
// used.
func ParseReportingInfo(pageText string, now time.Time) ReportingInfo {
	text := normalizeText(pageText)

	info := ReportingInfo{}
	for _, re := range datePatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			info.Date = m[1]
			break
		}
	}

	if m := periodPattern.FindStringSubmatch(text); m != nil {
		info.Quarter = m[1] + " " + m[2]
	} else {
		info.Quarter = calendarQuarter(now)
	}
	return info
}

func calendarQuarter(t time.Time) string {
	return fmt.Sprintf("Q%d %d", (int(t.Month())-1)/3+1, t.Year())
}

// ParseHoldings returns the holdings in a manager's holdings table.
// Each row may or may not start with a history cell (class "hist"); the
// column offsets are chosen per row. Rows without a readable ticker and
// repeated tickers are skipped with a warning.
func (p *Parser) ParseHoldings(html, managerCode string) []model.Holding {
	holdings := make([]model.Holding, 0)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		p.logger.Warn("failed to parse holdings page", "manager", managerCode, "error", err)
		return holdings
	}

	table := findHoldingsTable(doc)
	if table == nil {
		p.logger.Warn("no holdings table found", "manager", managerCode)
		return holdings
	}

	info := ParseReportingInfo(doc.Text(), p.now())
	seen := make(map[string]struct{})

	table.Find("tr").Each(func(i int, row *goquery.Selection) {
		cells := row.ChildrenFiltered("td")
		if cells.Length() == 0 {
			return
		}

		h, ok := p.holdingFromRow(cells, managerCode, i)
		if !ok {
			return
		}
		if _, dup := seen[h.Symbol]; dup {
			p.logger.Warn("skipping duplicate holding", "manager", managerCode, "symbol", h.Symbol, "row", i)
			return
		}
		seen[h.Symbol] = struct{}{}

		h.ReportingDate = info.Date
		h.ReportingQuarter = info.Quarter
		holdings = append(holdings, h)
	})

	p.logger.Debug("parsed holdings", "manager", managerCode, "holdings", len(holdings))
	return holdings
}

// holdingFromRow decodes one table row. ok is false if the row is not a
// holding.
func (p *Parser) holdingFromRow(cells *goquery.Selection, managerCode string, row int) (model.Holding, bool) {
	base := 0
	if cells.First().HasClass("hist") {
		base = 1
	}
	if cells.Length() < base+minHoldingCells {
		return model.Holding{}, false
	}

	at := func(offset int) string {
		idx := base + offset
		if idx >= cells.Length() {
			return ""
		}
		return cellText(cells.Eq(idx))
	}

	symbol, company := stockInfo(cells.Eq(base))
	if symbol == "" {
		p.logger.Warn("skipping holding row without ticker", "manager", managerCode, "row", row)
		return model.Holding{}, false
	}
	if !validTicker(symbol) {
		p.logger.Warn("skipping holding row with malformed ticker", "manager", managerCode, "row", row, "symbol", symbol)
		return model.Holding{}, false
	}

	return model.Holding{
		Symbol:             symbol,
		CompanyName:        company,
		ManagerID:          managerCode,
		Percentage:         ParsePercent(at(colPercent)),
		RecentActivity:     at(colActivity),
		Shares:             ParseInt(at(colShares)),
		ReportedPrice:      ParseCurrency(at(colReported)),
		Value:              ParseCurrency(at(colValue)),
		CurrentPrice:       ParseCurrency(at(colCurrent)),
		PriceChangePercent: ParsePercent(at(colChange)),
		Week52Low:          ParseCurrency(at(colWeek52Low)),
		Week52High:         ParseCurrency(at(colWeek52High)),
	}, true
}

// findHoldingsTable returns table#grid, or the first table whose leading
// header cells mention a holdings column.
func findHoldingsTable(doc *goquery.Document) *goquery.Selection {
	if grid := doc.Find("table#grid").First(); grid.Length() > 0 {
		return grid
	}

	var found *goquery.Selection
	doc.Find("table").EachWithBreak(func(_ int, t *goquery.Selection) bool {
		headers := t.Find("th")
		if headers.Length() == 0 {
			headers = t.Find("td")
		}
		var parts []string
		headers.Slice(0, min(headers.Length(), 10)).Each(func(_ int, h *goquery.Selection) {
			parts = append(parts, strings.ToLower(cellText(h)))
		})
		text := strings.Join(parts, " ")
		if containsAny(text, headerWords...) {
			found = t
			return false
		}
		return true
	})
	return found
}
