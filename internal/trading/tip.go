package trading

import (
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chimera-labs/chimera-operator/internal/models"
)

// TipConfig carries the three configured tip tiers, grounded exactly in
// original_source's engine/mev_protection.rs.
type TipConfig struct {
	ExitTipSOL       decimal.Decimal
	ConsensusTipSOL  decimal.Decimal
	StandardTipSOL   decimal.Decimal
}

// consensusMultiplier matches the source's `* 1.5` bump for
// multi-leader consensus buys.
var consensusMultiplier = decimal.NewFromFloat(1.5)

// Tip computes the MEV-auction tip, in native SOL, for a trade. Exit
// trades always use the exit tier; consensus buys get 1.5x the
// consensus tier; everything else uses the standard tier.
func Tip(cfg TipConfig, strategy models.Strategy, isConsensus bool) decimal.Decimal {
	if strategy == models.StrategyExit {
		return cfg.ExitTipSOL
	}
	if isConsensus {
		return cfg.ConsensusTipSOL.Mul(consensusMultiplier)
	}
	return cfg.StandardTipSOL
}

// RandomSubmitDelay returns a jittered 50-200ms delay applied before
// submission, grounded in original_source's add_random_delay — makes
// submission timing less fingerprintable to adversarial searchers.
func RandomSubmitDelay() time.Duration {
	return time.Duration(50+rand.Intn(151)) * time.Millisecond
}
