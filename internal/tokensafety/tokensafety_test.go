package tokensafety

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chimera-labs/chimera-operator/internal/blockchain"
	"github.com/chimera-labs/chimera-operator/internal/cache"
	"github.com/chimera-labs/chimera-operator/internal/models"
)

type fakeSimulator struct {
	result SimResult
	err    error
}

func (f *fakeSimulator) SimulateSwap(ctx context.Context, mint string) (SimResult, error) {
	return f.result, f.err
}

func mintInfoServer(t *testing.T, mintAuthority, freezeAuthority *string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      1,
			"result": map[string]interface{}{
				"value": map[string]interface{}{
					"data": map[string]interface{}{
						"parsed": map[string]interface{}{
							"info": map[string]interface{}{
								"mintAuthority":   mintAuthority,
								"freezeAuthority": freezeAuthority,
								"supply":          "1000000",
								"decimals":        6,
							},
						},
					},
				},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func newCache(t *testing.T) *cache.TokenSafetyCache {
	t.Helper()
	c, err := cache.NewTokenSafetyCache(8, time.Minute)
	require.NoError(t, err)
	return c
}

func TestStableMintAlwaysSafe(t *testing.T) {
	v := New(blockchain.NewRPCClient("http://unused", "", ""), &fakeSimulator{}, newCache(t), nil)
	result, err := v.Check(context.Background(), "So11111111111111111111111111111111111111112", models.StrategySpear)
	require.NoError(t, err)
	assert.True(t, result.Safe)
}

func TestConfiguredStableMintOverridesDefaultWhitelist(t *testing.T) {
	authority := "SomeAuthority11111111111111111111111111111"
	srv := mintInfoServer(t, &authority, nil)
	defer srv.Close()

	const customMint = "CustomStableMint1111111111111111111111111"
	v := New(blockchain.NewRPCClient(srv.URL, "", ""), &fakeSimulator{}, newCache(t), []string{customMint})

	result, err := v.Check(context.Background(), customMint, models.StrategySpear)
	require.NoError(t, err)
	assert.True(t, result.Safe, "configured whitelist entry must bypass authority check")

	result, err = v.Check(context.Background(), "So11111111111111111111111111111111111111112", models.StrategySpear)
	require.NoError(t, err)
	assert.False(t, result.Safe, "default wSOL whitelist must not apply once a custom list is configured")
}

func TestFastPathRejectsLiveMintAuthority(t *testing.T) {
	authority := "SomeAuthority11111111111111111111111111111"
	srv := mintInfoServer(t, &authority, nil)
	defer srv.Close()

	v := New(blockchain.NewRPCClient(srv.URL, "", ""), &fakeSimulator{}, newCache(t), nil)
	result, err := v.Check(context.Background(), "RiskyMint1111111111111111111111111111111111", models.StrategySpear)
	require.NoError(t, err)
	assert.False(t, result.Safe)
	assert.Contains(t, result.Reason, "mint authority")
}

func TestExitBypassesSlowPath(t *testing.T) {
	srv := mintInfoServer(t, nil, nil)
	defer srv.Close()

	sim := &fakeSimulator{result: SimResult{LiquidityUSD: 1, IsHoneypot: true}}
	v := New(blockchain.NewRPCClient(srv.URL, "", ""), sim, newCache(t), nil)

	result, err := v.Check(context.Background(), "Mint1111111111111111111111111111111111111", models.StrategyExit)
	require.NoError(t, err)
	assert.True(t, result.Safe, "exit must bypass liquidity floor and honeypot check")
}

func TestSlowPathRejectsBelowLiquidityFloor(t *testing.T) {
	srv := mintInfoServer(t, nil, nil)
	defer srv.Close()

	sim := &fakeSimulator{result: SimResult{LiquidityUSD: 100}}
	v := New(blockchain.NewRPCClient(srv.URL, "", ""), sim, newCache(t), nil)

	result, err := v.Check(context.Background(), "Mint2222222222222222222222222222222222222", models.StrategyShield)
	require.NoError(t, err)
	assert.False(t, result.Safe)
	assert.Contains(t, result.Reason, "liquidity")
}

func TestSlowPathRejectsHoneypot(t *testing.T) {
	srv := mintInfoServer(t, nil, nil)
	defer srv.Close()

	sim := &fakeSimulator{result: SimResult{LiquidityUSD: 50_000, IsHoneypot: true}}
	v := New(blockchain.NewRPCClient(srv.URL, "", ""), sim, newCache(t), nil)

	result, err := v.Check(context.Background(), "Mint3333333333333333333333333333333333333", models.StrategySpear)
	require.NoError(t, err)
	assert.False(t, result.Safe)
	assert.Contains(t, result.Reason, "honeypot")
}

func TestResultIsCachedAcrossCalls(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		resp := map[string]interface{}{
			"jsonrpc": "2.0", "id": 1,
			"result": map[string]interface{}{
				"value": map[string]interface{}{
					"data": map[string]interface{}{
						"parsed": map[string]interface{}{
							"info": map[string]interface{}{
								"mintAuthority": nil, "freezeAuthority": nil, "supply": "1", "decimals": 6,
							},
						},
					},
				},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	sim := &fakeSimulator{result: SimResult{LiquidityUSD: 50_000}}
	v := New(blockchain.NewRPCClient(srv.URL, "", ""), sim, newCache(t), nil)

	mint := "Mint4444444444444444444444444444444444444"
	_, err := v.Check(context.Background(), mint, models.StrategySpear)
	require.NoError(t, err)
	_, err = v.Check(context.Background(), mint, models.StrategySpear)
	require.NoError(t, err)

	assert.Equal(t, 1, calls, fmt.Sprintf("expected single upstream call due to caching, got %d", calls))
}
