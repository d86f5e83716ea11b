package report

import (
	"cmp"
	"regexp"
	"slices"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nao1215/dataroma/internal/model"
)

// DefaultTopN is the number of rows in each ranked table.
const DefaultTopN = 10

var quarterLabel = regexp.MustCompile(`^Q([1-4]) (\d{4})$`)

// Summary is a condensed view of a crawl.
type Summary struct {
	RunID       string    `json:"run_id,omitempty"`
	LastUpdated time.Time `json:"last_updated"`

	// Checkpoint is true when the data is from an unfinished run.
	Checkpoint bool `json:"checkpoint"`
	FromCache  bool `json:"from_cache"`

	Managers      int `json:"managers"`
	Holdings      int `json:"holdings"`
	Activities    int `json:"activities"`
	UniqueTickers int `json:"unique_tickers"`
	Errors        int `json:"errors"`

	DurationSeconds float64          `json:"duration_seconds"`
	Fetch           model.FetchStats `json:"fetch"`

	// LatestQuarter is the most recent quarter with activity.
	LatestQuarter string `json:"latest_quarter,omitempty"`

	Actions     []ActionCount    `json:"actions"`
	TopStocks   []StockSummary   `json:"top_stocks"`
	TopManagers []ManagerSummary `json:"top_managers"`
}

// ActionCount is the number of activities of one type.
type ActionCount struct {
	Action model.ActionType `json:"action"`
	Count  int              `json:"count"`
}

// StockSummary aggregates one ticker across managers.
type StockSummary struct {
	Symbol     string  `json:"symbol"`
	Company    string  `json:"company"`
	Owners     int     `json:"owners"`
	TotalValue float64 `json:"total_value"`
}

// ManagerSummary is one row of the largest-managers table.
type ManagerSummary struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Firm           string  `json:"firm,omitempty"`
	Holdings       int     `json:"holdings"`
	PortfolioValue float64 `json:"portfolio_value"`
}

// NewSummary builds a summary of res. md supplies the run identity and
// counters; topN <= 0 selects DefaultTopN.
func NewSummary(res *model.Result, md model.Metadata, topN int) *Summary {
	if topN <= 0 {
		topN = DefaultTopN
	}
	if res == nil {
		res = model.NewResult()
	}

	progress := md.Progress
	if progress.StartTime.IsZero() {
		progress = res.Progress
	}

	return &Summary{
		RunID:           md.RunID,
		LastUpdated:     md.LastUpdated,
		Checkpoint:      md.Checkpoint,
		FromCache:       res.FromCache,
		Managers:        len(res.Managers),
		Holdings:        len(res.Holdings),
		Activities:      len(res.Activities),
		UniqueTickers:   len(model.Tickers(res.Holdings, res.Activities)),
		Errors:          progress.ErrorsEncountered,
		DurationSeconds: progress.DurationSeconds,
		Fetch:           md.Fetch,
		LatestQuarter:   latestQuarter(res.Activities),
		Actions:         countActions(res.Activities),
		TopStocks:       topStocks(res.Holdings, topN),
		TopManagers:     topManagers(res.Managers, topN),
	}
}

// Partial reports whether the summary describes an incomplete crawl.
func (s *Summary) Partial() bool {
	return s.Checkpoint
}

// TotalActions returns the number of activities counted in Actions.
func (s *Summary) TotalActions() int {
	total := 0
	for _, a := range s.Actions {
		total += a.Count
	}
	return total
}

func countActions(activities []model.Activity) []ActionCount {
	counts := make(map[model.ActionType]int, len(model.ActionTypes))
	for _, a := range activities {
		counts[a.ActionType]++
	}
	out := make([]ActionCount, 0, len(model.ActionTypes))
	for _, t := range model.ActionTypes {
		out = append(out, ActionCount{Action: t, Count: counts[t]})
	}
	return out
}

func topStocks(holdings []model.Holding, n int) []StockSummary {
	type agg struct {
		summary StockSummary
		value   decimal.Decimal
	}
	bySymbol := make(map[string]*agg)
	for _, h := range holdings {
		a, ok := bySymbol[h.Symbol]
		if !ok {
			a = &agg{summary: StockSummary{Symbol: h.Symbol, Company: h.CompanyName}}
			bySymbol[h.Symbol] = a
		}
		a.summary.Owners++
		a.value = a.value.Add(decimal.NewFromFloat(h.Value))
	}

	out := make([]StockSummary, 0, len(bySymbol))
	for _, a := range bySymbol {
		a.summary.TotalValue = a.value.InexactFloat64()
		out = append(out, a.summary)
	}
	slices.SortFunc(out, func(a, b StockSummary) int {
		if c := cmp.Compare(b.Owners, a.Owners); c != 0 {
			return c
		}
		if c := cmp.Compare(b.TotalValue, a.TotalValue); c != 0 {
			return c
		}
		return cmp.Compare(a.Symbol, b.Symbol)
	})
	return out[:min(n, len(out))]
}

func topManagers(managers []model.Manager, n int) []ManagerSummary {
	out := make([]ManagerSummary, 0, len(managers))
	for _, m := range managers {
		out = append(out, ManagerSummary{
			ID:             m.ID,
			Name:           m.Name,
			Firm:           m.Firm,
			Holdings:       m.NumHoldings,
			PortfolioValue: m.PortfolioValue,
		})
	}
	slices.SortFunc(out, func(a, b ManagerSummary) int {
		if c := cmp.Compare(b.PortfolioValue, a.PortfolioValue); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out[:min(n, len(out))]
}

// latestQuarter returns the most recent "Q# YYYY" label among activities.
func latestQuarter(activities []model.Activity) string {
	best, bestKey := "", -1
	for _, a := range activities {
		m := quarterLabel.FindStringSubmatch(a.Date)
		if m == nil {
			continue
		}
		q, _ := strconv.Atoi(m[1])
		y, _ := strconv.Atoi(m[2])
		if key := y*10 + q; key > bestKey {
			best, bestKey = a.Date, key
		}
	}
	return best
}
