// Package recovery implements the Recovery Sweeper (C11): a ticker that
// finds trades stuck in EXECUTING or EXITING past a staleness window,
// re-checks them on chain, and resolves or regresses them.
package recovery

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chimera-labs/chimera-operator/internal/blockchain"
	"github.com/chimera-labs/chimera-operator/internal/ledger"
	"github.com/chimera-labs/chimera-operator/internal/models"
	"github.com/chimera-labs/chimera-operator/internal/storage"
)

// Config bounds the sweeper's cadence and indeterminacy budget.
type Config struct {
	Interval           time.Duration
	StalenessThreshold time.Duration
	MaxIndeterminate   int
}

func DefaultConfig() Config {
	return Config{
		Interval:           30 * time.Second,
		StalenessThreshold: 60 * time.Second,
		MaxIndeterminate:   3,
	}
}

// Sweeper scans for stuck trades on a fixed interval.
type Sweeper struct {
	cfg    Config
	db     *storage.DB
	rpc    *blockchain.RPCClient
	ledger *ledger.Ledger
}

func New(cfg Config, db *storage.DB, rpc *blockchain.RPCClient, l *ledger.Ledger) *Sweeper {
	return &Sweeper{cfg: cfg, db: db, rpc: rpc, ledger: l}
}

// Run blocks, sweeping on cfg.Interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs a single pass. Exported so callers/tests can trigger it
// without waiting on the ticker.
func (s *Sweeper) Sweep(ctx context.Context) {
	stuck, err := s.ledger.ListByStatus(models.StatusExecuting, models.StatusExiting)
	if err != nil {
		log.Error().Err(err).Msg("recovery: failed to list stuck trades")
		return
	}

	cutoff := time.Now().Add(-s.cfg.StalenessThreshold)
	for _, t := range stuck {
		if t.UpdatedAt.After(cutoff) {
			continue
		}
		s.resolve(ctx, t)
	}
}

func (s *Sweeper) resolve(ctx context.Context, t *models.TradeRecord) {
	if t.TxSig == nil || *t.TxSig == "" {
		s.recordIndeterminate(ctx, t, "no transaction signature recorded")
		return
	}

	result, err := s.rpc.CheckTransaction(ctx, *t.TxSig)
	if err != nil {
		s.recordIndeterminate(ctx, t, "status check failed: "+err.Error())
		return
	}

	switch result.Status {
	case "SUCCESS":
		s.clearAttempts(t.TradeUUID)
		if t.Status == models.StatusExecuting {
			if err := s.ledger.TransitionToActive(t.TradeUUID, *t.TxSig); err != nil {
				log.Error().Err(err).Str("tradeUUID", t.TradeUUID).Msg("recovery: failed to advance confirmed trade to ACTIVE")
			}
		}
		// EXITING trades that confirmed on chain are closed out by the
		// engine's normal exit-confirmation path; nothing to do here.
	case "FAILED":
		s.clearAttempts(t.TradeUUID)
		switch t.Status {
		case models.StatusExecuting:
			if err := s.ledger.TransitionToFailed(t.TradeUUID, "transaction failed on chain"); err != nil {
				log.Error().Err(err).Str("tradeUUID", t.TradeUUID).Msg("recovery: failed to mark FAILED")
			}
		case models.StatusExiting:
			if err := s.ledger.RegressExitingToActive(t.TradeUUID, "recovery_sweep: exit tx failed on chain"); err != nil {
				log.Error().Err(err).Str("tradeUUID", t.TradeUUID).Msg("recovery: failed to regress EXITING to ACTIVE")
			}
		}
	default:
		s.recordIndeterminate(ctx, t, "transaction status indeterminate: "+result.Status)
	}
}

// recordIndeterminate bumps the attempt counter for a trade and, once
// MaxIndeterminate is reached, resolves it pessimistically: EXECUTING
// trades are marked FAILED, EXITING trades are regressed to ACTIVE so
// the engine can retry the exit.
func (s *Sweeper) recordIndeterminate(ctx context.Context, t *models.TradeRecord, reason string) {
	attempts, err := s.bumpAttempts(t.TradeUUID)
	if err != nil {
		log.Error().Err(err).Str("tradeUUID", t.TradeUUID).Msg("recovery: failed to record attempt")
		return
	}

	log.Warn().Str("tradeUUID", t.TradeUUID).Int("attempts", attempts).Str("reason", reason).Msg("recovery: indeterminate trade")

	if attempts < s.cfg.MaxIndeterminate {
		return
	}

	switch t.Status {
	case models.StatusExecuting:
		if err := s.ledger.TransitionToFailed(t.TradeUUID, "recovery_sweep: exhausted indeterminate retries"); err != nil {
			log.Error().Err(err).Str("tradeUUID", t.TradeUUID).Msg("recovery: failed to mark FAILED after exhausting retries")
		}
	case models.StatusExiting:
		if err := s.ledger.RegressExitingToActive(t.TradeUUID, "recovery_sweep: exhausted indeterminate retries"); err != nil {
			log.Error().Err(err).Str("tradeUUID", t.TradeUUID).Msg("recovery: failed to regress after exhausting retries")
		}
	}
	s.clearAttempts(t.TradeUUID)
}

func (s *Sweeper) bumpAttempts(tradeUUID string) (int, error) {
	now := storage.Now()
	_, err := s.db.Raw().Exec(`
		INSERT INTO recovery_attempts (trade_uuid, attempts, last_attempt_at)
		VALUES (?, 1, ?)
		ON CONFLICT(trade_uuid) DO UPDATE SET
			attempts = attempts + 1,
			last_attempt_at = excluded.last_attempt_at
	`, tradeUUID, now)
	if err != nil {
		return 0, err
	}

	var attempts int
	row := s.db.Raw().QueryRow(`SELECT attempts FROM recovery_attempts WHERE trade_uuid = ?`, tradeUUID)
	if err := row.Scan(&attempts); err != nil {
		return 0, err
	}
	return attempts, nil
}

func (s *Sweeper) clearAttempts(tradeUUID string) {
	if _, err := s.db.Raw().Exec(`DELETE FROM recovery_attempts WHERE trade_uuid = ?`, tradeUUID); err != nil {
		log.Error().Err(err).Str("tradeUUID", tradeUUID).Msg("recovery: failed to clear attempt counter")
	}
}
