package model

import "github.com/shopspring/decimal"

// Holding is a manager's position in one security at the time of the
// last crawl. A re-crawl supersedes it; holdings are never merged.
type Holding struct {
	Symbol      string `json:"symbol"`
	CompanyName string `json:"company_name"`
	ManagerID   string `json:"manager_id"`

	Shares int64   `json:"shares"`
	Value  float64 `json:"value"`

	// Percentage is the share of the manager's portfolio, 0-100.
	Percentage float64 `json:"percentage"`

	// ReportedPrice is the price at filing; CurrentPrice the price at scrape time.
	ReportedPrice float64 `json:"reported_price"`
	CurrentPrice  float64 `json:"current_price"`

	// PriceChangePercent is the move from reported to current price.
	PriceChangePercent float64 `json:"price_change_percent"`

	// RecentActivity is the free-text label of the last trade, e.g. "Add 4.12%".
	RecentActivity string `json:"recent_activity"`

	Week52Low  float64 `json:"week_52_low"`
	Week52High float64 `json:"week_52_high"`

	// ReportingDate is the filing date text ("Nov 14, 2024"); ReportingQuarter
	// is its fiscal quarter label ("Q3 2024").
	ReportingDate    string `json:"reporting_date"`
	ReportingQuarter string `json:"reporting_quarter"`

	// Enrichment fields. Zero until an enricher fills them.
	MarketCap float64 `json:"market_cap,omitempty"`
	Sector    string  `json:"sector,omitempty"`
	Industry  string  `json:"industry,omitempty"`
}

// Key returns the (manager, ticker) identity of the holding.
func (h Holding) Key() string {
	return h.ManagerID + "/" + h.Symbol
}

// ValueDeviation returns |value - shares*current_price| / value.
// ok is false when value, shares or current price is not positive and the
// check does not apply. Arithmetic is exact so large share counts do not
// drift.
func (h Holding) ValueDeviation() (deviation float64, ok bool) {
	if h.Value <= 0 || h.Shares <= 0 || h.CurrentPrice <= 0 {
		return 0, false
	}
	value := decimal.NewFromFloat(h.Value)
	implied := decimal.NewFromInt(h.Shares).Mul(decimal.NewFromFloat(h.CurrentPrice))
	dev := value.Sub(implied).Abs().Div(value)
	return dev.InexactFloat64(), true
}

// ConsistentValue reports whether value agrees with shares*current_price
// within tolerance (a fraction, 0.25 = 25%). Holdings the check does not
// apply to are consistent. A failure points at wrong-column extraction,
// not at a market fact.
func (h Holding) ConsistentValue(tolerance float64) bool {
	dev, ok := h.ValueDeviation()
	if !ok {
		return true
	}
	return dev <= tolerance
}
