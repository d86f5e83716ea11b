package model

// Manager is an investment manager listed on the roster page.
// Managers are created once per crawl and identified solely by ID.
type Manager struct {
	// ID is the short code from the "m=" query parameter, e.g. "BRK".
	ID string `json:"id"`

	// Name is the display name, e.g. "Warren Buffett".
	Name string `json:"name"`

	// Firm is the firm name, e.g. "Berkshire Hathaway".
	Firm string `json:"firm"`

	// PortfolioValue is the last-known portfolio value in dollars.
	// The roster page does not carry it; it is summed from holdings.
	PortfolioValue float64 `json:"portfolio_value"`

	// NumHoldings is the number of holdings parsed for the manager.
	NumHoldings int `json:"num_holdings"`

	// URL is the holdings page the manager was discovered through.
	URL string `json:"url,omitempty"`
}
