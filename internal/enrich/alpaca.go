package enrich

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"golang.org/x/sync/errgroup"

	"github.com/nao1215/dataroma/internal/config"
	"github.com/nao1215/dataroma/internal/model"
)

// yearWindow is the span of daily bars the 52-week range is taken from.
const yearWindow = 365 * 24 * time.Hour

// MarketDataClient is the subset of the Alpaca market data client used here.
type MarketDataClient interface {
	GetLatestTrade(symbol string, req marketdata.GetLatestTradeRequest) (*marketdata.Trade, error)
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
}

// NewAlpacaClient creates a market data client from credentials.
func NewAlpacaClient(creds config.Credentials) *marketdata.Client {
	return marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    creds.AlpacaKeyID,
		APISecret: creds.AlpacaSecret,
	})
}

// AlpacaEnricher fills price and the 52-week range from Alpaca.
type AlpacaEnricher struct {
	client  MarketDataClient
	workers int
	logger  *slog.Logger
	now     func() time.Time
}

// AlpacaOption configures an AlpacaEnricher.
type AlpacaOption func(*AlpacaEnricher)

// WithAlpacaWorkers sets the number of concurrent lookups.
func WithAlpacaWorkers(n int) AlpacaOption {
	return func(e *AlpacaEnricher) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithAlpacaLogger sets the logger.
func WithAlpacaLogger(l *slog.Logger) AlpacaOption {
	return func(e *AlpacaEnricher) {
		e.logger = l
	}
}

// WithAlpacaClock sets the clock the bar window ends at.
func WithAlpacaClock(now func() time.Time) AlpacaOption {
	return func(e *AlpacaEnricher) {
		e.now = now
	}
}

// NewAlpacaEnricher creates an enricher over client.
func NewAlpacaEnricher(client MarketDataClient, opts ...AlpacaOption) *AlpacaEnricher {
	e := &AlpacaEnricher{
		client:  client,
		workers: DefaultWorkers,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enrich implements Enricher. Tickers the provider rejects are logged and
// left out of the result.
func (e *AlpacaEnricher) Enrich(ctx context.Context, tickers []string) (map[string]model.MarketData, error) {
	var (
		mu  sync.Mutex
		out = make(map[string]model.MarketData, len(tickers))
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for _, sym := range tickers {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			md, ok := e.lookup(sym)
			if !ok {
				return nil
			}
			mu.Lock()
			out[sym] = md
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, nil
}

func (e *AlpacaEnricher) lookup(sym string) (model.MarketData, bool) {
	md := model.MarketData{Symbol: sym}

	trade, err := e.client.GetLatestTrade(sym, marketdata.GetLatestTradeRequest{})
	if err != nil {
		e.logger.Debug("no latest trade", "symbol", sym, "error", err)
	} else if trade != nil {
		md.Price = trade.Price
	}

	end := e.now()
	bars, err := e.client.GetBars(sym, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     end.Add(-yearWindow),
		End:       end,
	})
	if err != nil {
		e.logger.Debug("no daily bars", "symbol", sym, "error", err)
	}
	md.Week52Low, md.Week52High = barRange(bars)

	if md.IsZero() {
		e.logger.Warn("no market data", "provider", "alpaca", "symbol", sym)
		return md, false
	}
	return md, true
}

// barRange returns the lowest low and highest high across bars.
func barRange(bars []marketdata.Bar) (low, high float64) {
	for i, b := range bars {
		if i == 0 || b.Low < low {
			low = b.Low
		}
		if b.High > high {
			high = b.High
		}
	}
	return low, high
}
