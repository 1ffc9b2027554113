// Package vault loads operator secrets from the process environment
// once at startup. It never reads from disk or accepts secrets as CLI
// flags, keeping them out of shell history and process listings beyond
// the initial env (grounded in blockchain/wallet.go's plaintext-key
// warning, hardened into an explicit loader with length validation).
package vault

import (
	"fmt"
	"os"

	"github.com/mr-tron/base58"
)

// Vault holds the secrets the operator needs for the lifetime of the
// process. Fields are populated once by Load and never mutated.
type Vault struct {
	WalletPrivateKey []byte // 64-byte ed25519 keypair (seed||pubkey) or 32-byte seed
	WebhookSecret    string
	RPCAPIKey        string
}

// Load reads WALLET_PRIVATE_KEY (base58), WEBHOOK_SECRET, and
// RPC_API_KEY from the environment. It returns an error — the caller is
// expected to treat this as fatal at startup — if the wallet key is
// missing or not 32/64 bytes once decoded.
func Load() (*Vault, error) {
	rawKey := os.Getenv("WALLET_PRIVATE_KEY")
	if rawKey == "" {
		return nil, fmt.Errorf("vault: WALLET_PRIVATE_KEY not set")
	}

	key, err := base58.Decode(rawKey)
	if err != nil {
		return nil, fmt.Errorf("vault: decode WALLET_PRIVATE_KEY: %w", err)
	}
	if len(key) != 32 && len(key) != 64 {
		return nil, fmt.Errorf("vault: WALLET_PRIVATE_KEY must decode to 32 or 64 bytes, got %d", len(key))
	}

	return &Vault{
		WalletPrivateKey: key,
		WebhookSecret:    os.Getenv("WEBHOOK_SECRET"),
		RPCAPIKey:        os.Getenv("RPC_API_KEY"),
	}, nil
}
