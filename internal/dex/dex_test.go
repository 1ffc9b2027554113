package dex

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	name  string
	quote Quote
	err   error
	delay time.Duration
	fee   decimal.Decimal
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) FeePct() decimal.Decimal { return f.fee }

func (f *fakeProvider) Quote(ctx context.Context, inputMint, outputMint string, amountLamports uint64) (Quote, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return Quote{}, ctx.Err()
		}
	}
	return f.quote, f.err
}

func TestBestPicksLowestTotalCost(t *testing.T) {
	cheap := &fakeProvider{name: "cheap", quote: Quote{OutAmount: 100, PriceImpactPct: decimal.NewFromFloat(0.1)}}
	expensive := &fakeProvider{name: "expensive", quote: Quote{OutAmount: 100, PriceImpactPct: decimal.NewFromFloat(2.0)}}

	r := NewRouter(nil, cheap, expensive)
	q, err := r.Best(context.Background(), "in", "out", 1000)
	require.NoError(t, err)
	assert.Equal(t, "cheap", q.Provider)
}

func TestBestFallsBackWhenAllProvidersFail(t *testing.T) {
	failing := &fakeProvider{name: "failing", err: errors.New("boom")}
	fallback := &fakeProvider{name: "fallback", quote: Quote{OutAmount: 50}}

	r := NewRouter(fallback, failing)
	q, err := r.Best(context.Background(), "in", "out", 1000)
	require.NoError(t, err)
	assert.Equal(t, "fallback", q.Provider)
}

func TestBestReturnsErrorWhenFallbackAlsoFails(t *testing.T) {
	failing := &fakeProvider{name: "failing", err: errors.New("boom")}
	fallbackFailing := &fakeProvider{name: "fallback", err: errors.New("also boom")}

	r := NewRouter(fallbackFailing, failing)
	_, err := r.Best(context.Background(), "in", "out", 1000)
	assert.ErrorIs(t, err, ErrAllProvidersFailed)
}

func TestSlowProviderTimesOutAndIsExcluded(t *testing.T) {
	slow := &fakeProvider{name: "slow", quote: Quote{OutAmount: 100}, delay: 50 * time.Millisecond}
	fast := &fakeProvider{name: "fast", quote: Quote{OutAmount: 90, PriceImpactPct: decimal.NewFromFloat(1.0)}}

	r := NewRouter(nil, slow, fast)
	r.ProviderTimeout = 10 * time.Millisecond

	q, err := r.Best(context.Background(), "in", "out", 1000)
	require.NoError(t, err)
	assert.Equal(t, "fast", q.Provider)
}

func TestNoProvidersNoFallbackErrors(t *testing.T) {
	r := NewRouter(nil)
	_, err := r.Best(context.Background(), "in", "out", 1000)
	assert.ErrorIs(t, err, ErrAllProvidersFailed)
}
