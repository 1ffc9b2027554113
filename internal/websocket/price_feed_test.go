package websocket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chimera-labs/chimera-operator/internal/cache"
)

func TestSetPriceThenGetPriceRoundTrips(t *testing.T) {
	client := NewClient("ws://unused", time.Second, time.Minute)
	prices := cache.NewPriceCache()
	feed := NewPriceFeed(client, "WalletAddr", prices)

	feed.SetPrice("MintAAA", 0.00042)
	require.Equal(t, 0.00042, feed.GetPrice("MintAAA"))
}

func TestHandlePoolUpdateUsesCachedPrice(t *testing.T) {
	client := NewClient("ws://unused", time.Second, time.Minute)
	prices := cache.NewPriceCache()
	feed := NewPriceFeed(client, "WalletAddr", prices)
	feed.SetPrice("MintBBB", 1.5)

	var received PriceUpdate
	feed.OnPriceUpdate(func(update PriceUpdate) { received = update })

	feed.handlePoolUpdate("MintBBB", []byte(`{"context":{"slot":7},"value":{"data":["",""],"lamports":0}}`))

	require.Eventually(t, func() bool {
		return received.Mint == "MintBBB"
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, 1.5, received.PriceSOL)
	require.Equal(t, uint64(7), received.Slot)
}

func TestCalculatePriceFromReserves(t *testing.T) {
	price := CalculatePriceFromReserves(PoolReserves{
		BaseReserve:   1_000_000,
		QuoteReserve:  2_000_000_000,
		BaseDecimals:  6,
		QuoteDecimals: 9,
	})
	require.InDelta(t, 2.0, price, 0.0001)
}

func TestTrackTokenRegistersPoolSubscription(t *testing.T) {
	srv := echoSubscribeServer(t)
	defer srv.Close()

	client := NewClient(wsURL(srv), 100*time.Millisecond, time.Minute)
	require.NoError(t, client.Connect())
	defer client.Close()

	feed := NewPriceFeed(client, "WalletAddr", cache.NewPriceCache())
	require.NoError(t, feed.TrackToken("MintCCC", "PoolAddr"))
	require.Equal(t, 1, feed.GetTrackedCount())

	require.NoError(t, feed.UntrackToken("MintCCC"))
	require.Equal(t, 0, feed.GetTrackedCount())
}
