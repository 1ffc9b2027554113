// Package tokensafety implements the Token Safety Validator (C2): a
// fast-path admission check against a whitelist and mint authorities,
// and a slow-path swap simulation with strategy-specific liquidity
// floors. Verdicts are cached via cache.TokenSafetyCache; transient
// upstream errors are never cached.
package tokensafety

import (
	"context"
	"fmt"

	"github.com/chimera-labs/chimera-operator/internal/blockchain"
	"github.com/chimera-labs/chimera-operator/internal/cache"
	"github.com/chimera-labs/chimera-operator/internal/models"
)

// liquidityFloorUSD is the minimum pool liquidity required per strategy.
// Exit signals bypass the floor entirely — closing a position must never
// be blocked by a safety check.
var liquidityFloorUSD = map[models.Strategy]float64{
	models.StrategyShield: 10_000,
	models.StrategySpear:  5_000,
}

// SwapSimulator abstracts the "simulate swap" slow-path check: an
// upstream call (Jupiter quote, RPC simulateTransaction, etc) that
// returns the pool liquidity and whether the route exhibits honeypot
// signatures (route returns a quote but the reverse route is absent or
// economically nonsensical).
type SwapSimulator interface {
	SimulateSwap(ctx context.Context, mint string) (SimResult, error)
}

// SimResult is the outcome of a swap simulation.
type SimResult struct {
	LiquidityUSD  float64
	IsHoneypot    bool
}

// DefaultStableMints is used when a deployment's configuration supplies
// no whitelist of its own (wrapped SOL, USDC — known-good, centrally
// issued).
func DefaultStableMints() []string {
	return []string{
		"So11111111111111111111111111111111111111112", // wSOL
		"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", // USDC
	}
}

// Validator runs both the fast-path and slow-path checks.
type Validator struct {
	rpc         *blockchain.RPCClient
	sim         SwapSimulator
	cache       *cache.TokenSafetyCache
	stableMints map[string]bool
}

// New builds a Validator. stableMints always pass the fast path
// regardless of authority state; if empty, DefaultStableMints is used
// so a deployment that doesn't configure one still gets the known-good
// defaults rather than an empty whitelist.
func New(rpc *blockchain.RPCClient, sim SwapSimulator, tc *cache.TokenSafetyCache, stableMints []string) *Validator {
	if len(stableMints) == 0 {
		stableMints = DefaultStableMints()
	}
	set := make(map[string]bool, len(stableMints))
	for _, m := range stableMints {
		set[m] = true
	}
	return &Validator{rpc: rpc, sim: sim, cache: tc, stableMints: set}
}

// Check returns a cached verdict if one exists; otherwise it runs the
// fast path then (if needed) the slow path, caches a definitive result,
// and returns it. Transient errors from either path propagate without
// being cached.
func (v *Validator) Check(ctx context.Context, mint string, strategy models.Strategy) (cache.TokenSafetyResult, error) {
	if cached, ok := v.cache.Get(mint, strategy); ok {
		return cached, nil
	}

	result, transientErr := v.evaluate(ctx, mint, strategy)
	if transientErr != nil {
		return cache.TokenSafetyResult{}, transientErr
	}

	v.cache.Set(mint, strategy, result)
	return result, nil
}

func (v *Validator) evaluate(ctx context.Context, mint string, strategy models.Strategy) (cache.TokenSafetyResult, error) {
	if v.stableMints[mint] {
		return cache.TokenSafetyResult{Safe: true, Reason: "known-good stable mint"}, nil
	}

	fastResult, err := v.fastPath(ctx, mint)
	if err != nil {
		return cache.TokenSafetyResult{}, fmt.Errorf("tokensafety: fast path: %w", err)
	}
	if !fastResult.Safe {
		return fastResult, nil
	}

	if strategy == models.StrategyExit {
		// Exit bypasses liquidity floors and swap simulation: closing a
		// position must never be blocked here.
		return cache.TokenSafetyResult{Safe: true, Reason: "exit bypasses slow path"}, nil
	}

	return v.slowPath(ctx, mint, strategy)
}

// fastPath rejects mints with live (non-renounced) mint or freeze
// authority, unless the mint is on the stable whitelist.
func (v *Validator) fastPath(ctx context.Context, mint string) (cache.TokenSafetyResult, error) {
	info, err := v.rpc.GetMintInfo(ctx, mint)
	if err != nil {
		return cache.TokenSafetyResult{}, err
	}

	if info.MintAuthority != nil {
		return cache.TokenSafetyResult{Safe: false, Reason: "mint authority not renounced"}, nil
	}
	if info.FreezeAuthority != nil {
		return cache.TokenSafetyResult{Safe: false, Reason: "freeze authority not renounced"}, nil
	}
	return cache.TokenSafetyResult{Safe: true}, nil
}

// slowPath simulates a swap and checks the strategy's liquidity floor.
func (v *Validator) slowPath(ctx context.Context, mint string, strategy models.Strategy) (cache.TokenSafetyResult, error) {
	sim, err := v.sim.SimulateSwap(ctx, mint)
	if err != nil {
		return cache.TokenSafetyResult{}, err
	}

	if sim.IsHoneypot {
		return cache.TokenSafetyResult{Safe: false, Reason: "honeypot signature detected"}, nil
	}

	floor, ok := liquidityFloorUSD[strategy]
	if ok && sim.LiquidityUSD < floor {
		return cache.TokenSafetyResult{Safe: false, Reason: fmt.Sprintf("liquidity $%.0f below %s floor $%.0f", sim.LiquidityUSD, strategy, floor)}, nil
	}

	return cache.TokenSafetyResult{Safe: true}, nil
}
