// Package trading implements the Executor (C8) and Tip/MEV Controller
// (C9): the only component authorized to sign and submit transactions.
package trading

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/chimera-labs/chimera-operator/internal/aggregator"
	"github.com/chimera-labs/chimera-operator/internal/blockchain"
	"github.com/chimera-labs/chimera-operator/internal/breaker"
	"github.com/chimera-labs/chimera-operator/internal/cache"
	"github.com/chimera-labs/chimera-operator/internal/dex"
	"github.com/chimera-labs/chimera-operator/internal/ledger"
	"github.com/chimera-labs/chimera-operator/internal/models"
)

const solMint = "So11111111111111111111111111111111111111112"

// Config bounds the Executor's confirmation polling and base fee
// behavior.
type Config struct {
	Tip                TipConfig
	BasePriorityFeeSOL decimal.Decimal
	MaxConfirmSeconds  int
	ComputeUnitLimit   uint32
}

func DefaultConfig() Config {
	return Config{
		BasePriorityFeeSOL: decimal.NewFromFloat(0.00005),
		MaxConfirmSeconds:  45,
		ComputeUnitLimit:   600000,
	}
}

// Executor performs the C8 step sequence: transition to EXECUTING,
// fan out quotes, build+sign+submit, poll for confirmation, transition
// to ACTIVE/FAILED.
type Executor struct {
	cfg      Config
	wallet   *blockchain.Wallet
	rpc      *blockchain.RPCClient
	router   *dex.Router
	blockhash *blockchain.BlockhashCache
	ledger   *ledger.Ledger
	breaker  *breaker.Breaker
	agg      *aggregator.Aggregator
	prices   *cache.PriceCache
	volumes  *cache.VolumeCache
}

// SetPriceCache attaches the Pre-Validator's price cache so that every
// quote this Executor takes feeds the next signal's drift check.
// Leaving it unset just means the cache stays fed only by whatever else
// populates it (nothing else does today, so the drift check always
// falls back to the leader-observed price until this is wired).
func (e *Executor) SetPriceCache(p *cache.PriceCache) {
	e.prices = p
}

// SetVolumeCache attaches the volume cache that feeds the Engine Loop's
// volume-collapse gate. Leaving it unset just means no trade volume is
// ever recorded, so the gate never trips.
func (e *Executor) SetVolumeCache(v *cache.VolumeCache) {
	e.volumes = v
}

func NewExecutor(
	cfg Config,
	wallet *blockchain.Wallet,
	rpc *blockchain.RPCClient,
	router *dex.Router,
	blockhashCache *blockchain.BlockhashCache,
	l *ledger.Ledger,
	b *breaker.Breaker,
	agg *aggregator.Aggregator,
) *Executor {
	return &Executor{
		cfg:       cfg,
		wallet:    wallet,
		rpc:       rpc,
		router:    router,
		blockhash: blockhashCache,
		ledger:    l,
		breaker:   b,
		agg:       agg,
	}
}

// Execute runs the full step sequence for a single queued signal. It is
// idempotent: if the ledger row has already advanced past EXECUTING
// (the Engine Loop re-delivered a signal it already handled), it aborts
// without resubmitting.
func (e *Executor) Execute(ctx context.Context, sig models.Signal) error {
	if err := e.ledger.TransitionToExecuting(sig.TradeUUID); err != nil {
		log.Debug().Str("tradeUUID", sig.TradeUUID).Err(err).Msg("executor: skip, trade already past EXECUTING")
		return nil
	}

	txSig, err := e.submit(ctx, sig)
	if err != nil {
		log.Error().Str("tradeUUID", sig.TradeUUID).Err(err).Msg("executor: trade failed")
		if ferr := e.ledger.TransitionToFailed(sig.TradeUUID, err.Error()); ferr != nil {
			log.Error().Err(ferr).Msg("executor: failed to record FAILED transition")
		}
		e.breaker.RecordFailure()
		return err
	}

	if err := e.ledger.TransitionToActive(sig.TradeUUID, txSig); err != nil {
		log.Error().Err(err).Msg("executor: failed to record ACTIVE transition")
		return err
	}
	e.breaker.RecordSuccess()
	return nil
}

func (e *Executor) submit(ctx context.Context, sig models.Signal) (string, error) {
	inputMint, outputMint := solMint, sig.TokenMint
	if sig.Action == models.ActionSell {
		inputMint, outputMint = sig.TokenMint, solMint
	}

	amountLamports := toLamports(sig.SizeNative)

	quote, err := e.router.Best(ctx, inputMint, outputMint, amountLamports)
	if err != nil {
		return "", fmt.Errorf("quote: %w", err)
	}
	e.recordQuotedPrice(sig, quote, amountLamports)
	e.recordQuotedVolume(sig, amountLamports)

	swapTxB64, err := quote.SwapTransaction(ctx, e.wallet.Address())
	if err != nil {
		return "", fmt.Errorf("build swap tx: %w", err)
	}

	isConsensus := e.agg != nil && sig.Action == models.ActionBuy && e.agg.IsConsensus(sig.TokenMint)
	tip := Tip(e.cfg.Tip, sig.Strategy, isConsensus)
	priorityFeeLamports := toLamports(e.cfg.BasePriorityFeeSOL.Add(tip))

	builder := blockchain.NewTransactionBuilder(e.wallet, e.blockhash, priorityFeeLamports)
	builder.SetComputeUnitLimit(e.cfg.ComputeUnitLimit)

	time.Sleep(RandomSubmitDelay())

	signedTx, err := builder.SignSerializedTransaction(swapTxB64)
	if err != nil {
		return "", fmt.Errorf("sign: %w", err)
	}

	txSig, err := e.rpc.SendTransaction(ctx, signedTx, true)
	if err != nil {
		return "", fmt.Errorf("send: %w", err)
	}

	if err := e.confirm(ctx, txSig); err != nil {
		return "", err
	}

	return txSig, nil
}

// confirm polls for transaction status up to MaxConfirmSeconds. A
// result that stays NOT_FOUND/pending for the whole window makes
// confirm return an error, so Execute marks the trade FAILED; FAILED is
// terminal and the Recovery Sweeper (C11), which scans only
// EXECUTING/EXITING rows, does not revisit it.
func (e *Executor) confirm(ctx context.Context, txSig string) error {
	deadline := time.Now().Add(time.Duration(e.cfg.MaxConfirmSeconds) * time.Second)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		result, err := e.rpc.CheckTransaction(ctx, txSig)
		if err == nil {
			switch result.Status {
			case "SUCCESS":
				return nil
			case "FAILED":
				return fmt.Errorf("transaction failed on-chain: %s", txSig)
			}
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("confirmation timed out after %ds: %s", e.cfg.MaxConfirmSeconds, txSig)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// recordQuotedPrice derives a lamports-per-raw-token-unit price from the
// quote's lamports-in/tokens-out ratio (for a buy, inverted for a sell)
// and feeds it into the Pre-Validator's price cache so the next signal
// for this mint has something newer than the leader's own observed
// price to drift-check against.
func (e *Executor) recordQuotedPrice(sig models.Signal, quote dex.Quote, amountLamports uint64) {
	if e.prices == nil || quote.OutAmount == 0 {
		return
	}
	var price float64
	if sig.Action == models.ActionSell {
		// input = token (amountLamports), output = SOL (quote.OutAmount)
		price = float64(quote.OutAmount) / float64(amountLamports)
	} else {
		// input = SOL (amountLamports), output = token (quote.OutAmount)
		price = float64(amountLamports) / float64(quote.OutAmount)
	}
	if price > 0 {
		e.prices.RecordPrice(sig.TokenMint, price)
	}
}

// recordQuotedVolume records this trade's SOL-denominated size into the
// volume cache, the same side-channel feed recordQuotedPrice uses for
// price: every submitted trade is itself the only "traded volume"
// observation this tree has, so each fill is one sample.
func (e *Executor) recordQuotedVolume(sig models.Signal, amountLamports uint64) {
	if e.volumes == nil {
		return
	}
	amountSOL := float64(amountLamports) / 1_000_000_000
	if amountSOL > 0 {
		e.volumes.RecordVolume(sig.TokenMint, amountSOL)
	}
}

func toLamports(amountSOL decimal.Decimal) uint64 {
	lamports := amountSOL.Mul(decimal.NewFromInt(1_000_000_000))
	return uint64(lamports.IntPart())
}
