package trading

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chimera-labs/chimera-operator/internal/cache"
	"github.com/chimera-labs/chimera-operator/internal/dex"
	"github.com/chimera-labs/chimera-operator/internal/models"
)

func TestRecordQuotedPriceBuyUsesLamportsOverTokensOut(t *testing.T) {
	e := &Executor{prices: cache.NewPriceCache()}
	sig := models.NewSignal(models.Signal{Action: models.ActionBuy, TokenMint: "MintA"})

	e.recordQuotedPrice(sig, dex.Quote{OutAmount: 200}, 100)

	price, ok := e.prices.Latest("MintA")
	assert.True(t, ok)
	assert.InDelta(t, 0.5, price, 0.0001)
}

func TestRecordQuotedPriceSellUsesOutAmountOverLamports(t *testing.T) {
	e := &Executor{prices: cache.NewPriceCache()}
	sig := models.NewSignal(models.Signal{Action: models.ActionSell, TokenMint: "MintB"})

	e.recordQuotedPrice(sig, dex.Quote{OutAmount: 50}, 100)

	price, ok := e.prices.Latest("MintB")
	assert.True(t, ok)
	assert.InDelta(t, 0.5, price, 0.0001)
}

func TestRecordQuotedPriceNoopWithoutCache(t *testing.T) {
	e := &Executor{}
	sig := models.NewSignal(models.Signal{Action: models.ActionBuy, TokenMint: "MintC"})

	assert.NotPanics(t, func() {
		e.recordQuotedPrice(sig, dex.Quote{OutAmount: 200}, 100)
	})
}

func TestRecordQuotedPriceSkipsZeroOutAmount(t *testing.T) {
	e := &Executor{prices: cache.NewPriceCache()}
	sig := models.NewSignal(models.Signal{Action: models.ActionBuy, TokenMint: "MintD"})

	e.recordQuotedPrice(sig, dex.Quote{OutAmount: 0}, 100)

	_, ok := e.prices.Latest("MintD")
	assert.False(t, ok)
}

func TestRecordQuotedVolumeConvertsLamportsToSOL(t *testing.T) {
	e := &Executor{volumes: cache.NewVolumeCache()}
	sig := models.NewSignal(models.Signal{Action: models.ActionBuy, TokenMint: "MintE"})

	e.recordQuotedVolume(sig, 1_500_000_000)

	avg, ok := e.volumes.Average24h("MintE")
	assert.True(t, ok)
	assert.InDelta(t, 1.5, avg, 0.0001)
}

func TestRecordQuotedVolumeNoopWithoutCache(t *testing.T) {
	e := &Executor{}
	sig := models.NewSignal(models.Signal{Action: models.ActionBuy, TokenMint: "MintF"})

	assert.NotPanics(t, func() {
		e.recordQuotedVolume(sig, 1_000_000_000)
	})
}
