package dex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// CanonicalProvider is the always-available fallback aggregator used
// when every Router provider in the primary fan-out errors. It speaks
// the same quote/swap shape Jupiter's Metis API does, since most
// aggregators converge on that contract, but against a separately
// configured base URL (e.g. a self-hosted router or a second vendor).
type CanonicalProvider struct {
	baseURL     string
	httpClient  *http.Client
	slippageBps int
	fee         decimal.Decimal
}

func NewCanonicalProvider(baseURL string, slippageBps int, fee decimal.Decimal) *CanonicalProvider {
	return &CanonicalProvider{
		baseURL:     baseURL,
		httpClient:  &http.Client{Timeout: 2 * time.Second},
		slippageBps: slippageBps,
		fee:         fee,
	}
}

func (p *CanonicalProvider) Name() string { return "canonical" }

func (p *CanonicalProvider) FeePct() decimal.Decimal { return p.fee }

func (p *CanonicalProvider) Quote(ctx context.Context, inputMint, outputMint string, amountLamports uint64) (Quote, error) {
	url := fmt.Sprintf("%s/quote?inputMint=%s&outputMint=%s&amount=%d&slippageBps=%d",
		p.baseURL, inputMint, outputMint, amountLamports, p.slippageBps)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Quote{}, fmt.Errorf("canonical quote: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("canonical quote: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Quote{}, fmt.Errorf("canonical quote failed (%d)", resp.StatusCode)
	}

	var body struct {
		OutAmount      string `json:"outAmount"`
		PriceImpactPct string `json:"priceImpactPct"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Quote{}, fmt.Errorf("canonical quote: decode: %w", err)
	}

	outAmount, err := strconv.ParseUint(body.OutAmount, 10, 64)
	if err != nil {
		return Quote{}, fmt.Errorf("canonical quote: parse outAmount: %w", err)
	}
	impact, err := decimal.NewFromString(body.PriceImpactPct)
	if err != nil {
		impact = decimal.Zero
	}

	return Quote{
		OutAmount:      outAmount,
		PriceImpactPct: impact,
		SwapTransaction: func(ctx context.Context, userPubkey string) (string, error) {
			return p.getSwapTransaction(ctx, inputMint, outputMint, userPubkey, amountLamports)
		},
	}, nil
}

func (p *CanonicalProvider) getSwapTransaction(ctx context.Context, inputMint, outputMint, userPubkey string, amountLamports uint64) (string, error) {
	url := fmt.Sprintf("%s/swap?inputMint=%s&outputMint=%s&amount=%d&userPublicKey=%s&slippageBps=%d",
		p.baseURL, inputMint, outputMint, amountLamports, userPubkey, p.slippageBps)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return "", fmt.Errorf("canonical swap: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("canonical swap: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("canonical swap failed (%d)", resp.StatusCode)
	}

	var body struct {
		SwapTransaction string `json:"swapTransaction"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("canonical swap: decode: %w", err)
	}
	return body.SwapTransaction, nil
}
