package vault

import (
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRejectsMissingKey(t *testing.T) {
	t.Setenv("WALLET_PRIVATE_KEY", "")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsWrongLength(t *testing.T) {
	t.Setenv("WALLET_PRIVATE_KEY", base58.Encode([]byte("too-short")))
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadAccepts64ByteKey(t *testing.T) {
	key := make([]byte, 64)
	for i := range key {
		key[i] = byte(i)
	}
	t.Setenv("WALLET_PRIVATE_KEY", base58.Encode(key))
	t.Setenv("WEBHOOK_SECRET", "whsec")
	t.Setenv("RPC_API_KEY", "rpckey")

	v, err := Load()
	require.NoError(t, err)
	assert.Len(t, v.WalletPrivateKey, 64)
	assert.Equal(t, "whsec", v.WebhookSecret)
	assert.Equal(t, "rpckey", v.RPCAPIKey)
}

func TestLoadAccepts32ByteSeed(t *testing.T) {
	key := make([]byte, 32)
	t.Setenv("WALLET_PRIVATE_KEY", base58.Encode(key))
	v, err := Load()
	require.NoError(t, err)
	assert.Len(t, v.WalletPrivateKey, 32)
}
