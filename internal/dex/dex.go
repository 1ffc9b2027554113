// Package dex fans a swap quote out across multiple DEX aggregator
// providers in parallel and selects the cheapest, falling back to a
// single canonical provider if every provider in the fan-out fails.
package dex

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// ErrAllProvidersFailed is returned when the fan-out and the fallback
// provider both fail to produce a quote.
var ErrAllProvidersFailed = errors.New("dex: all providers failed")

// Quote is a normalized swap quote, regardless of originating provider.
type Quote struct {
	Provider       string
	OutAmount      uint64
	PriceImpactPct decimal.Decimal
	SwapTransaction func(ctx context.Context, userPubkey string) (string, error)
}

// TotalCostPct approximates the all-in cost of taking this quote:
// price impact plus the provider's stated fee percentage.
func (q Quote) TotalCostPct(feePct decimal.Decimal) decimal.Decimal {
	return q.PriceImpactPct.Add(feePct)
}

// Provider is one DEX aggregator's quote endpoint.
type Provider interface {
	Name() string
	Quote(ctx context.Context, inputMint, outputMint string, amountLamports uint64) (Quote, error)
	FeePct() decimal.Decimal
}

// defaultProviderTimeout bounds each provider's quote call so a single
// slow aggregator cannot stall the whole fan-out (C8 step 2).
const defaultProviderTimeout = 500 * time.Millisecond

// Router fans a quote request out across Providers, picking the
// minimum-total-cost result, and falls back to Fallback if every
// provider in Providers errors or times out.
type Router struct {
	Providers       []Provider
	Fallback        Provider
	ProviderTimeout time.Duration
}

func NewRouter(fallback Provider, providers ...Provider) *Router {
	return &Router{Providers: providers, Fallback: fallback, ProviderTimeout: defaultProviderTimeout}
}

type providerResult struct {
	quote Quote
	err   error
}

// Best queries every provider concurrently, each bounded by
// ProviderTimeout, and returns the quote with the lowest total cost. If
// every provider fails, it queries Fallback once, unbounded by the
// per-provider timeout.
func (r *Router) Best(ctx context.Context, inputMint, outputMint string, amountLamports uint64) (Quote, error) {
	timeout := r.ProviderTimeout
	if timeout <= 0 {
		timeout = defaultProviderTimeout
	}

	results := make([]providerResult, len(r.Providers))
	var wg sync.WaitGroup
	for i, p := range r.Providers {
		wg.Add(1)
		go func(i int, p Provider) {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			q, err := p.Quote(pctx, inputMint, outputMint, amountLamports)
			if err == nil {
				q.Provider = p.Name()
			}
			results[i] = providerResult{quote: q, err: err}
		}(i, p)
	}
	wg.Wait()

	var best *Quote
	var bestCost decimal.Decimal
	for i, res := range results {
		if res.err != nil {
			continue
		}
		cost := res.quote.TotalCostPct(r.Providers[i].FeePct())
		if best == nil || cost.LessThan(bestCost) {
			q := res.quote
			best = &q
			bestCost = cost
		}
	}
	if best != nil {
		return *best, nil
	}

	if r.Fallback == nil {
		return Quote{}, ErrAllProvidersFailed
	}
	q, err := r.Fallback.Quote(ctx, inputMint, outputMint, amountLamports)
	if err != nil {
		return Quote{}, fmt.Errorf("%w: fallback also failed: %v", ErrAllProvidersFailed, err)
	}
	q.Provider = r.Fallback.Name()
	return q, nil
}
