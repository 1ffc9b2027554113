// Package engine implements the Engine Loop (C13): the process that
// pops signals from the Priority Queue and drives them through the
// circuit breaker, pre-validator, token safety validator, and executor.
package engine

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/semaphore"

	"github.com/chimera-labs/chimera-operator/internal/aggregator"
	"github.com/chimera-labs/chimera-operator/internal/breaker"
	"github.com/chimera-labs/chimera-operator/internal/cache"
	"github.com/chimera-labs/chimera-operator/internal/ledger"
	"github.com/chimera-labs/chimera-operator/internal/models"
	"github.com/chimera-labs/chimera-operator/internal/prevalidate"
	"github.com/chimera-labs/chimera-operator/internal/queue"
	"github.com/chimera-labs/chimera-operator/internal/tokensafety"
	"github.com/chimera-labs/chimera-operator/internal/trading"
	"github.com/chimera-labs/chimera-operator/internal/walletperf"
)

// Config bounds executor concurrency.
type Config struct {
	MaxConcurrentExecutions int64
}

func DefaultConfig() Config {
	return Config{MaxConcurrentExecutions: 8}
}

// Executor is the subset of trading.Executor the loop depends on, kept
// as an interface so tests can substitute a fake.
type Executor interface {
	Execute(ctx context.Context, sig models.Signal) error
}

var _ Executor = (*trading.Executor)(nil)

// Loop drains the priority queue, gating every signal on the circuit
// breaker, pre-validator, and token safety validator before handing it
// to the Executor.
type Loop struct {
	cfg       Config
	queue     *queue.Queue
	breaker   *breaker.Breaker
	ledger    *ledger.Ledger
	safety    *tokensafety.Validator
	prices    *cache.PriceCache
	volumes   *cache.VolumeCache
	agg       *aggregator.Aggregator
	executor  Executor
	sem       *semaphore.Weighted
	perf      *walletperf.Tracker
}

// SetPerfTracker attaches the advisory wallet-performance tracker.
// Leaving it unset simply skips recording outcomes; it never gates
// admission.
func (l *Loop) SetPerfTracker(t *walletperf.Tracker) {
	l.perf = t
}

// SetVolumeCache attaches the volume-collapse gate's data source.
// Leaving it unset skips the gate entirely: every buy passes it, the
// same behavior as before this cache had a consumer.
func (l *Loop) SetVolumeCache(v *cache.VolumeCache) {
	l.volumes = v
}

// volumeDropThresholdPercent is the drop-from-24h-average that trips the
// gate: original_source's own doc comment on has_volume_drop calls out
// ">50%" as its illustrative default.
const volumeDropThresholdPercent = 50.0

func New(
	cfg Config,
	q *queue.Queue,
	b *breaker.Breaker,
	l *ledger.Ledger,
	safety *tokensafety.Validator,
	prices *cache.PriceCache,
	agg *aggregator.Aggregator,
	executor Executor,
) *Loop {
	return &Loop{
		cfg:      cfg,
		queue:    q,
		breaker:  b,
		ledger:   l,
		safety:   safety,
		prices:   prices,
		agg:      agg,
		executor: executor,
		sem:      semaphore.NewWeighted(cfg.MaxConcurrentExecutions),
	}
}

// Run blocks, processing signals until the queue is closed or ctx is
// cancelled. Each admitted signal runs in its own goroutine bounded by
// the configured concurrency weight; Run returns once every in-flight
// goroutine has finished.
func (l *Loop) Run(ctx context.Context) {
	for {
		sig, err := l.queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrClosed) || ctx.Err() != nil {
				break
			}
			log.Error().Err(err).Msg("engine: pop failed")
			continue
		}

		if l.agg != nil && sig.Action == models.ActionBuy {
			l.agg.Observe(sig.TokenMint, sig.LeaderWallet)
		}

		if err := l.sem.Acquire(ctx, 1); err != nil {
			break
		}
		go func(sig models.Signal) {
			defer l.sem.Release(1)
			l.process(ctx, sig)
		}(sig)
	}

	// Drain: wait for every in-flight goroutine to release its slot.
	_ = l.sem.Acquire(context.Background(), l.cfg.MaxConcurrentExecutions)
}

// process runs the admission checks for one signal and, if all pass,
// hands it to the Executor. Every rejection is recorded by advancing
// the ledger row straight to FAILED with a labelled reason, mirroring
// the one-way QUEUED->EXECUTING->FAILED path the Executor itself uses
// for its own errors.
func (l *Loop) process(ctx context.Context, sig models.Signal) {
	if !l.breaker.Allow() {
		l.reject(sig, "circuit_open")
		return
	}

	currentPrice := sig.LeaderObservedPrice
	if price, ok := l.prices.Latest(sig.TokenMint); ok {
		p := decimal.NewFromFloat(price)
		currentPrice = &p
	}
	if currentPrice == nil {
		l.reject(sig, "no_current_price")
		return
	}

	result := prevalidate.Validate(sig.SizeNative, *currentPrice, sig.LeaderObservedPrice)
	if !result.Accepted {
		l.reject(sig, "prevalidate_rejected: "+result.Reason)
		return
	}

	if l.volumes != nil && sig.Action == models.ActionBuy && l.volumes.HasVolumeDrop(sig.TokenMint, volumeDropThresholdPercent) {
		l.reject(sig, "volume_collapse")
		return
	}

	if l.safety != nil && sig.Action == models.ActionBuy {
		safety, err := l.safety.Check(ctx, sig.TokenMint, sig.Strategy)
		if err != nil {
			l.reject(sig, "tokensafety_error: "+err.Error())
			return
		}
		if !safety.Safe {
			l.reject(sig, "tokensafety_rejected: "+safety.Reason)
			return
		}
	}

	active := l.beginExit(sig)

	err := l.executor.Execute(ctx, sig)
	if err != nil {
		log.Error().Err(err).Str("tradeUUID", sig.TradeUUID).Msg("engine: execution failed")
	}

	l.finishExit(active, err)

	if l.perf != nil && sig.LeaderWallet != "" {
		l.recordOutcome(sig, err == nil)
	}
}

// beginExit correlates an Exit signal to the ACTIVE position it closes
// and advances that position's own row to EXITING before the sell is
// submitted. Non-Exit signals, and Exit signals with no matching ACTIVE
// position, return nil: the position ledger only ever reaches CLOSED
// through this correlation, never through the exit signal's own
// trade_uuid, which tracks the sell transaction rather than the
// position.
func (l *Loop) beginExit(sig models.Signal) *models.TradeRecord {
	if sig.Strategy != models.StrategyExit {
		return nil
	}
	active, err := l.ledger.FindActiveByMint(sig.TokenMint)
	if err != nil {
		log.Warn().Err(err).Str("mint", sig.TokenMint).Msg("engine: exit signal has no active position to close")
		return nil
	}
	if err := l.ledger.TransitionToExiting(active.TradeUUID); err != nil {
		log.Error().Err(err).Str("tradeUUID", active.TradeUUID).Msg("engine: failed to record EXITING transition")
		return nil
	}
	return active
}

// finishExit advances the correlated position to CLOSED or FAILED once
// the sell transaction itself has resolved.
func (l *Loop) finishExit(active *models.TradeRecord, execErr error) {
	if active == nil {
		return
	}
	if execErr == nil {
		if err := l.ledger.TransitionToClosed(active.TradeUUID); err != nil {
			log.Error().Err(err).Str("tradeUUID", active.TradeUUID).Msg("engine: failed to record CLOSED transition")
		}
		return
	}
	if err := l.ledger.TransitionToFailed(active.TradeUUID, execErr.Error()); err != nil {
		log.Error().Err(err).Str("tradeUUID", active.TradeUUID).Msg("engine: failed to record FAILED transition on exit")
	}
}

// recordOutcome feeds an advisory success/failure signal into the
// wallet performance tracker: real realized PnL isn't tracked per
// trade_uuid (that needs full buy/sell position pairing, out of
// scope), so a completed execution counts as a nominal win and a
// failed one as a nominal loss sized to the signal.
func (l *Loop) recordOutcome(sig models.Signal, succeeded bool) {
	size, _ := sig.SizeNative.Float64()
	pnl := size
	if !succeeded {
		pnl = -size
	}
	if err := l.perf.RecordTradeResult(sig.LeaderWallet, pnl); err != nil {
		log.Warn().Err(err).Str("leader", sig.LeaderWallet).Msg("engine: wallet perf record failed")
	}
}

func (l *Loop) reject(sig models.Signal, reason string) {
	if err := l.ledger.TransitionToExecuting(sig.TradeUUID); err != nil {
		log.Debug().Str("tradeUUID", sig.TradeUUID).Msg("engine: reject skipped, trade already advanced")
		return
	}
	if err := l.ledger.TransitionToFailed(sig.TradeUUID, reason); err != nil {
		log.Error().Err(err).Str("tradeUUID", sig.TradeUUID).Msg("engine: failed to record rejection")
	}
}
