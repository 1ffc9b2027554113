package blockchain

import (
	"context"
	"fmt"
)

// MintAuthorities is the subset of an SPL mint account's parsed state the
// Token Safety Validator (C2) needs: whether mint/freeze authority has
// been renounced, and total supply.
type MintAuthorities struct {
	MintAuthority   *string
	FreezeAuthority *string
	Supply          string
	Decimals        uint8
}

// GetMintInfo fetches and parses an SPL Token or Token-2022 mint account
// via getAccountInfo with jsonParsed encoding, mirroring the parsed-info
// shape already used by GetTokenAccountsByOwner.
func (c *RPCClient) GetMintInfo(ctx context.Context, mint string) (*MintAuthorities, error) {
	if c.mintInfoCache != nil {
		if cached, ok := c.mintInfoCache.Get(mint); ok {
			info := cached.(MintAuthorities)
			return &info, nil
		}
	}

	info, err := c.fetchMintInfo(ctx, mint)
	if err != nil {
		return nil, err
	}
	if c.mintInfoCache != nil {
		c.mintInfoCache.Set(mint, *info, mintInfoCacheTTL)
	}
	return info, nil
}

func (c *RPCClient) fetchMintInfo(ctx context.Context, mint string) (*MintAuthorities, error) {
	req := RPCRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "getAccountInfo",
		Params: []interface{}{
			mint,
			map[string]string{"encoding": "jsonParsed"},
		},
	}

	var result struct {
		Value *struct {
			Data struct {
				Parsed struct {
					Info struct {
						MintAuthority   *string `json:"mintAuthority"`
						FreezeAuthority *string `json:"freezeAuthority"`
						Supply          string  `json:"supply"`
						Decimals        uint8   `json:"decimals"`
					} `json:"info"`
				} `json:"parsed"`
			} `json:"data"`
		} `json:"value"`
	}

	if err := c.call(ctx, req, &result); err != nil {
		return nil, err
	}
	if result.Value == nil {
		return nil, fmt.Errorf("mint account %s not found", mint)
	}

	info := result.Value.Data.Parsed.Info
	return &MintAuthorities{
		MintAuthority:   info.MintAuthority,
		FreezeAuthority: info.FreezeAuthority,
		Supply:          info.Supply,
		Decimals:        info.Decimals,
	}, nil
}
