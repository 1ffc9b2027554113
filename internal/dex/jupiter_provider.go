package dex

import (
	"context"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/chimera-labs/chimera-operator/internal/jupiter"
)

// JupiterProvider adapts jupiter.Client to the dex.Provider interface.
type JupiterProvider struct {
	client *jupiter.Client
	fee    decimal.Decimal
}

// NewJupiterProvider wraps an existing jupiter.Client. feePct is
// Jupiter's platform fee percentage, used in total-cost comparisons.
func NewJupiterProvider(client *jupiter.Client, feePct decimal.Decimal) *JupiterProvider {
	return &JupiterProvider{client: client, fee: feePct}
}

func (p *JupiterProvider) Name() string { return "jupiter" }

func (p *JupiterProvider) FeePct() decimal.Decimal { return p.fee }

func (p *JupiterProvider) Quote(ctx context.Context, inputMint, outputMint string, amountLamports uint64) (Quote, error) {
	resp, err := p.client.GetQuote(ctx, inputMint, outputMint, amountLamports)
	if err != nil {
		return Quote{}, fmt.Errorf("jupiter quote: %w", err)
	}

	outAmount, err := strconv.ParseUint(resp.OutAmount, 10, 64)
	if err != nil {
		return Quote{}, fmt.Errorf("jupiter quote: parse outAmount: %w", err)
	}
	impact, err := decimal.NewFromString(resp.PriceImpactPct)
	if err != nil {
		impact = decimal.Zero
	}

	return Quote{
		OutAmount:      outAmount,
		PriceImpactPct: impact,
		SwapTransaction: func(ctx context.Context, userPubkey string) (string, error) {
			return p.client.GetSwapTransaction(ctx, inputMint, outputMint, userPubkey, amountLamports)
		},
	}, nil
}
