// Package prevalidate implements the Pre-Validator (C3): a fast,
// fixed-point check of price drift and estimated slippage before a
// signal is allowed to reach the executor. Grounded in original_source's
// monitoring/pre_validator.rs, including its exact (simplified) slippage
// formula.
package prevalidate

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	hundred        = decimal.NewFromInt(100)
	driftRejectPct = decimal.NewFromFloat(5.0)
	slipRejectPct  = decimal.NewFromFloat(3.0)
	slipBase       = decimal.NewFromFloat(0.5)
	slipPerUnit    = decimal.NewFromFloat(0.1)
	slipUnitSize   = decimal.NewFromFloat(0.1)
	slipCap        = decimal.NewFromFloat(5.0)
)

// Result carries the pre-validator's verdict plus the figures it based
// the decision on, for audit logging.
type Result struct {
	Accepted         bool
	Reason           string
	DriftPercent     decimal.Decimal
	SlippageEstimate decimal.Decimal
}

// Validate compares currentPrice against the leader's trackedPrice (if
// known) and estimates slippage from the trade's native size. All
// arithmetic is fixed-point; no float64 ever enters the decision path
// (invariant P9).
func Validate(amountNative, currentPrice decimal.Decimal, trackedPrice *decimal.Decimal) Result {
	slippage := estimateSlippage(amountNative)

	if trackedPrice == nil {
		// No leader-observed price to compare against; slippage is still
		// enforced.
		if slippage.GreaterThan(slipRejectPct) {
			return Result{Accepted: false, Reason: fmt.Sprintf("slippage estimate %s%% exceeds %s%%", slippage, slipRejectPct), SlippageEstimate: slippage}
		}
		return Result{Accepted: true, SlippageEstimate: slippage}
	}

	drift := priceDrift(currentPrice, *trackedPrice)
	if drift.GreaterThan(driftRejectPct) {
		return Result{
			Accepted:         false,
			Reason:           fmt.Sprintf("price drift %s%% exceeds %s%%", drift, driftRejectPct),
			DriftPercent:     drift,
			SlippageEstimate: slippage,
		}
	}
	if slippage.GreaterThan(slipRejectPct) {
		return Result{
			Accepted:         false,
			Reason:           fmt.Sprintf("slippage estimate %s%% exceeds %s%%", slippage, slipRejectPct),
			DriftPercent:     drift,
			SlippageEstimate: slippage,
		}
	}

	return Result{Accepted: true, DriftPercent: drift, SlippageEstimate: slippage}
}

// priceDrift returns |current-tracked|/tracked * 100, zero if tracked is
// zero (avoids a divide-by-zero; callers should not supply it).
func priceDrift(current, tracked decimal.Decimal) decimal.Decimal {
	if tracked.IsZero() {
		return decimal.Zero
	}
	diff := current.Sub(tracked).Abs()
	return diff.Div(tracked).Mul(hundred)
}

// estimateSlippage is the simplified placeholder formula from the
// source engine: base 0.5% plus 0.1% per additional 0.1 native unit of
// size, capped at 5%.
func estimateSlippage(amountNative decimal.Decimal) decimal.Decimal {
	units := amountNative.Div(slipUnitSize)
	estimate := slipBase.Add(units.Mul(slipPerUnit))
	if estimate.GreaterThan(slipCap) {
		return slipCap
	}
	return estimate
}
