package enrich

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/nao1215/dataroma/internal/model"
)

// DefaultWorkers is the number of concurrent lookups per provider.
const DefaultWorkers = 4

// Enricher looks up market data for tickers. The returned map is keyed by
// ticker and only holds tickers the provider knows.
type Enricher interface {
	Enrich(ctx context.Context, tickers []string) (map[string]model.MarketData, error)
}

// Merge fills market fields of holdings from data and returns how many
// holdings changed. A zero field in data never overwrites a holding's
// value. When the current price changes and a reported price is known,
// the price change percent is recomputed.
func Merge(holdings []model.Holding, data map[string]model.MarketData) int {
	merged := 0
	for i := range holdings {
		md, ok := data[holdings[i].Symbol]
		if !ok || md.IsZero() {
			continue
		}
		if mergeHolding(&holdings[i], md) {
			merged++
		}
	}
	return merged
}

func mergeHolding(h *model.Holding, md model.MarketData) bool {
	changed := false
	setFloat := func(dst *float64, v float64) {
		if v != 0 && *dst != v {
			*dst = v
			changed = true
		}
	}
	setString := func(dst *string, v string) {
		if v != "" && *dst != v {
			*dst = v
			changed = true
		}
	}

	before := h.CurrentPrice
	setFloat(&h.CurrentPrice, md.Price)
	setFloat(&h.MarketCap, md.MarketCap)
	setFloat(&h.Week52Low, md.Week52Low)
	setFloat(&h.Week52High, md.Week52High)
	setString(&h.Sector, md.Sector)
	setString(&h.Industry, md.Industry)

	if h.CurrentPrice != before && h.ReportedPrice > 0 {
		h.PriceChangePercent = priceChange(h.ReportedPrice, h.CurrentPrice)
	}
	return changed
}

// priceChange returns the percent move from reported to current, rounded
// to two places.
func priceChange(reported, current float64) float64 {
	r := decimal.NewFromFloat(reported)
	c := decimal.NewFromFloat(current)
	return c.Sub(r).Div(r).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
}

// fill copies the non-zero fields of src into the zero fields of dst.
func fill(dst, src model.MarketData) model.MarketData {
	if dst.Symbol == "" {
		dst.Symbol = src.Symbol
	}
	if dst.Price == 0 {
		dst.Price = src.Price
	}
	if dst.MarketCap == 0 {
		dst.MarketCap = src.MarketCap
	}
	if dst.Week52Low == 0 {
		dst.Week52Low = src.Week52Low
	}
	if dst.Week52High == 0 {
		dst.Week52High = src.Week52High
	}
	if dst.Sector == "" {
		dst.Sector = src.Sector
	}
	if dst.Industry == "" {
		dst.Industry = src.Industry
	}
	return dst
}

// Chain queries enrichers in order. For each ticker and field the first
// non-zero value wins. A failing enricher does not stop the chain; its
// error is joined into the returned error next to whatever data the
// others produced. Cancellation stops the chain immediately.
type Chain struct {
	enrichers []Enricher
	logger    *slog.Logger
}

// NewChain creates a Chain over enrichers.
func NewChain(logger *slog.Logger, enrichers ...Enricher) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{enrichers: enrichers, logger: logger}
}

// Len returns the number of enrichers in the chain.
func (c *Chain) Len() int {
	return len(c.enrichers)
}

// Enrich implements Enricher.
func (c *Chain) Enrich(ctx context.Context, tickers []string) (map[string]model.MarketData, error) {
	if len(c.enrichers) == 0 {
		return nil, ErrNoProvider
	}

	out := make(map[string]model.MarketData, len(tickers))
	var errs []error
	for i, e := range c.enrichers {
		data, err := e.Enrich(ctx, tickers)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return out, ctxErr
		}
		if err != nil {
			c.logger.Warn("enrichment provider failed", "provider", i, "error", err)
			errs = append(errs, err)
		}
		for sym, md := range data {
			out[sym] = fill(out[sym], md)
		}
	}
	return out, errors.Join(errs...)
}
