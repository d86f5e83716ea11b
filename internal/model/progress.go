package model

import (
	"sort"
	"time"
)

// Progress holds crawl-run counters. Only the orchestrator mutates it.
type Progress struct {
	ManagersProcessed int `json:"managers_processed"`
	HoldingsFound     int `json:"holdings_found"`
	ActivitiesFound   int `json:"activities_found"`
	ErrorsEncountered int `json:"errors_encountered"`

	// StartTime is when the run began; DurationSeconds is refreshed at
	// every checkpoint and at the end of the run.
	StartTime       time.Time `json:"start_time"`
	DurationSeconds float64   `json:"duration_seconds"`
}

// NewProgress returns zeroed counters starting at now.
func NewProgress(now time.Time) Progress {
	return Progress{StartTime: now}
}

// Touch refreshes DurationSeconds against now.
func (p *Progress) Touch(now time.Time) {
	if p.StartTime.IsZero() {
		return
	}
	p.DurationSeconds = now.Sub(p.StartTime).Seconds()
}

// Elapsed returns the recorded duration.
func (p Progress) Elapsed() time.Duration {
	return time.Duration(p.DurationSeconds * float64(time.Second))
}

// Result is everything one crawl produced.
type Result struct {
	Managers   []Manager  `json:"managers"`
	Holdings   []Holding  `json:"holdings"`
	Activities []Activity `json:"activities"`
	Progress   Progress   `json:"progress"`

	// FromCache is true when the run short-circuited on a fresh cache.
	FromCache bool `json:"from_cache"`

	// UniqueTickers is the number of distinct symbols across holdings
	// and activities.
	UniqueTickers int `json:"unique_tickers"`
}

// NewResult returns an empty, non-nil result.
func NewResult() *Result {
	return &Result{
		Managers:   []Manager{},
		Holdings:   []Holding{},
		Activities: []Activity{},
	}
}

// Empty reports whether the result carries no records at all.
func (r *Result) Empty() bool {
	return len(r.Managers) == 0 && len(r.Holdings) == 0 && len(r.Activities) == 0
}

// Tickers returns the sorted distinct symbols across holdings and activities.
func Tickers(holdings []Holding, activities []Activity) []string {
	seen := make(map[string]struct{}, len(holdings))
	for _, h := range holdings {
		if h.Symbol != "" {
			seen[h.Symbol] = struct{}{}
		}
	}
	for _, a := range activities {
		if a.Symbol != "" {
			seen[a.Symbol] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Metadata is the run summary persisted as metadata.json.
type Metadata struct {
	NumManagers   int      `json:"num_managers"`
	NumHoldings   int      `json:"num_holdings"`
	NumActivities int      `json:"num_activities"`
	UniqueStocks  int      `json:"unique_stocks"`
	Progress      Progress `json:"progress"`

	// Checkpoint is true while the run is still in progress.
	Checkpoint bool `json:"checkpoint"`

	// RunID ties the metadata to a crawl journal entry.
	RunID string `json:"run_id,omitempty"`

	// Fetch holds HTTP client counters.
	Fetch FetchStats `json:"fetch"`

	// LastUpdated is stamped by the store on every write.
	LastUpdated time.Time `json:"last_updated"`
}

// FetchStats are HTTP client counters.
type FetchStats struct {
	Requests  int `json:"requests"`
	Retries   int `json:"retries"`
	Failures  int `json:"failures"`
	CacheHits int `json:"cache_hits"`
}

// MarketData is what an enrichment provider knows about a ticker.
type MarketData struct {
	Symbol     string  `json:"symbol"`
	Price      float64 `json:"price"`
	MarketCap  float64 `json:"market_cap"`
	Week52Low  float64 `json:"week_52_low"`
	Week52High float64 `json:"week_52_high"`
	Sector     string  `json:"sector"`
	Industry   string  `json:"industry"`
}

// IsZero reports whether no field beyond Symbol is set.
func (m MarketData) IsZero() bool {
	return m.Price == 0 && m.MarketCap == 0 && m.Week52Low == 0 &&
		m.Week52High == 0 && m.Sector == "" && m.Industry == ""
}

// RunStatus is the outcome of a crawl run as recorded in the journal.
type RunStatus string

const (
	// RunRunning is a run that has started and not finished.
	RunRunning RunStatus = "running"
	// RunCompleted is a run that crawled every manager.
	RunCompleted RunStatus = "completed"
	// RunCached is a run served entirely from the structured cache.
	RunCached RunStatus = "cached"
	// RunEmpty is a run aborted because the roster had no managers.
	RunEmpty RunStatus = "empty"
	// RunCanceled is a run stopped by its context.
	RunCanceled RunStatus = "canceled"
	// RunFailed is a run stopped by a store or journal error.
	RunFailed RunStatus = "failed"
)

// String returns the status name.
func (s RunStatus) String() string {
	return string(s)
}

// FetchEvent is one page request made during a run.
type FetchEvent struct {
	URL        string    `json:"url"`
	CacheKey   string    `json:"cache_key"`
	StatusCode int       `json:"status_code"`
	Failure    string    `json:"failure,omitempty"`
	Retries    int       `json:"retries"`
	FromCache  bool      `json:"from_cache"`
	At         time.Time `json:"at"`
}
