package walletperf

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chimera-labs/chimera-operator/internal/storage"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "walletperf_test.db")
	db, err := storage.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tr := New(db)
	require.NoError(t, tr.EnsureSchema())
	return tr
}

func TestRecordTradeResultAccumulatesMetrics(t *testing.T) {
	tr := newTestTracker(t)

	require.NoError(t, tr.RecordTradeResult("LeaderA", 0.5))
	require.NoError(t, tr.RecordTradeResult("LeaderA", -0.2))
	require.NoError(t, tr.RecordTradeResult("LeaderA", 0.1))

	m, err := tr.GetMetrics("LeaderA")
	require.NoError(t, err)
	require.Equal(t, 3, m.TotalTrades)
	require.Equal(t, 2, m.WinningTrades)
	require.InDelta(t, 0.4, m.CopyPnLSOL, 0.0001)
	require.InDelta(t, 66.666, m.SuccessRatePct, 0.01)
}

func TestShouldPromoteFasterRequiresRateAndVolume(t *testing.T) {
	tr := newTestTracker(t)

	for i := 0; i < 9; i++ {
		require.NoError(t, tr.RecordTradeResult("LeaderB", 0.1))
	}
	promote, err := tr.ShouldPromoteFaster("LeaderB")
	require.NoError(t, err)
	require.False(t, promote, "only 9 trades, below PromoteMinTrades")

	require.NoError(t, tr.RecordTradeResult("LeaderB", 0.1))
	promote, err = tr.ShouldPromoteFaster("LeaderB")
	require.NoError(t, err)
	require.True(t, promote)
}

func TestShouldDemoteRequiresSustainedNegativePnL(t *testing.T) {
	tr := newTestTracker(t)
	require.NoError(t, tr.RecordTradeResult("LeaderC", -1.0))

	demote, err := tr.ShouldDemote("LeaderC")
	require.NoError(t, err)
	require.False(t, demote, "negative for 0 elapsed time, not yet 14 days")
}

func TestShouldDemoteFalseWhenPnLRecovers(t *testing.T) {
	tr := newTestTracker(t)
	require.NoError(t, tr.RecordTradeResult("LeaderD", -1.0))
	require.NoError(t, tr.RecordTradeResult("LeaderD", 2.0))

	demote, err := tr.ShouldDemote("LeaderD")
	require.NoError(t, err)
	require.False(t, demote)
}

func TestGetMetricsUnknownWalletReturnsZeroValue(t *testing.T) {
	tr := newTestTracker(t)
	m, err := tr.GetMetrics("Unknown")
	require.NoError(t, err)
	require.Equal(t, 0, m.TotalTrades)
	require.True(t, m.NegativeSince.IsZero())
}
