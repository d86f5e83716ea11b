package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/nao1215/dataroma/internal/fetch"
	"github.com/nao1215/dataroma/internal/model"
)

// DefaultOverviewURL is the Alpha Vantage query endpoint.
const DefaultOverviewURL = "https://www.alphavantage.co/query"

// JSONGetter fetches and decodes a JSON document. fetch.Client implements it.
type JSONGetter interface {
	GetJSON(ctx context.Context, rawURL string, headers map[string]string, v any) fetch.Result
}

// overviewResponse is the subset of the OVERVIEW document we read. Alpha
// Vantage encodes every number as a string and uses "None" for unknowns.
type overviewResponse struct {
	Symbol     string `json:"Symbol"`
	MarketCap  string `json:"MarketCapitalization"`
	Sector     string `json:"Sector"`
	Industry   string `json:"Industry"`
	Week52High string `json:"52WeekHigh"`
	Week52Low  string `json:"52WeekLow"`

	// Set instead of data when the key is throttled or invalid.
	Note        string `json:"Note"`
	Information string `json:"Information"`
}

// OverviewEnricher fills market cap, sector, industry and the 52-week
// range from the Alpha Vantage OVERVIEW endpoint.
type OverviewEnricher struct {
	getter  JSONGetter
	apiKey  string
	baseURL string
	workers int
	logger  *slog.Logger
}

// OverviewOption configures an OverviewEnricher.
type OverviewOption func(*OverviewEnricher)

// WithOverviewURL overrides the endpoint.
func WithOverviewURL(u string) OverviewOption {
	return func(e *OverviewEnricher) {
		e.baseURL = u
	}
}

// WithOverviewWorkers sets the number of concurrent lookups.
func WithOverviewWorkers(n int) OverviewOption {
	return func(e *OverviewEnricher) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithOverviewLogger sets the logger.
func WithOverviewLogger(l *slog.Logger) OverviewOption {
	return func(e *OverviewEnricher) {
		e.logger = l
	}
}

// NewOverviewEnricher creates an enricher that queries through getter.
// The free tier is heavily rate limited, so lookups are sequential unless
// WithOverviewWorkers says otherwise.
func NewOverviewEnricher(getter JSONGetter, apiKey string, opts ...OverviewOption) *OverviewEnricher {
	e := &OverviewEnricher{
		getter:  getter,
		apiKey:  apiKey,
		baseURL: DefaultOverviewURL,
		workers: 1,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enrich implements Enricher. A throttling notice stops the remaining
// lookups and is returned as ErrThrottled with the data gathered so far.
func (e *OverviewEnricher) Enrich(ctx context.Context, tickers []string) (map[string]model.MarketData, error) {
	var (
		mu  sync.Mutex
		out = make(map[string]model.MarketData, len(tickers))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for _, sym := range tickers {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			md, err := e.lookup(gctx, sym)
			if err != nil {
				return err
			}
			if md.IsZero() {
				return nil
			}
			mu.Lock()
			out[sym] = md
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		return out, err
	}
	return out, nil
}

func (e *OverviewEnricher) lookup(ctx context.Context, sym string) (model.MarketData, error) {
	q := url.Values{}
	q.Set("function", "OVERVIEW")
	q.Set("symbol", sym)
	q.Set("apikey", e.apiKey)

	var resp overviewResponse
	res := e.getter.GetJSON(ctx, e.baseURL+"?"+q.Encode(), nil, &resp)
	if res.Failure == fetch.FailureCanceled {
		return model.MarketData{}, res.Cause()
	}
	if !res.OK() {
		e.logger.Warn("overview lookup failed", "symbol", sym, "failure", res.Failure, "status", res.StatusCode)
		return model.MarketData{Symbol: sym}, nil
	}
	if notice := firstNonEmpty(resp.Note, resp.Information); notice != "" && resp.Symbol == "" {
		return model.MarketData{}, fmt.Errorf("%w: %s", ErrThrottled, notice)
	}

	return model.MarketData{
		Symbol:     sym,
		MarketCap:  overviewNumber(resp.MarketCap),
		Week52Low:  overviewNumber(resp.Week52Low),
		Week52High: overviewNumber(resp.Week52High),
		Sector:     overviewText(resp.Sector),
		Industry:   overviewText(resp.Industry),
	}, nil
}

// overviewNumber parses an OVERVIEW numeric string. "None", "-" and
// garbage read as 0.
func overviewNumber(s string) float64 {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return d.InexactFloat64()
}

func overviewText(s string) string {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "none") || s == "-" {
		return ""
	}
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
