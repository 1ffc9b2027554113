package ledger

import (
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chimera-labs/chimera-operator/internal/models"
	"github.com/chimera-labs/chimera-operator/internal/storage"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	dir := t.TempDir()
	db, err := storage.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db)
}

func testSignal() models.Signal {
	return models.NewSignal(models.Signal{
		Strategy:     models.StrategySpear,
		Action:       models.ActionBuy,
		TokenMint:    "So11111111111111111111111111111111111111112",
		SizeNative:   decimal.NewFromFloat(0.5),
		LeaderWallet: "LeaderWallet111111111111111111111111111111",
		Source:       models.SourceWebhook,
	})
}

func TestCreateQueuedAndGet(t *testing.T) {
	l := newTestLedger(t)
	sig := testSignal()

	require.NoError(t, l.CreateQueued(sig))

	rec, err := l.Get(sig.TradeUUID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusQueued, rec.Status)
	assert.Equal(t, sig.TokenMint, rec.TokenMint)
	assert.Nil(t, rec.TxSig)
}

func TestGetMissing(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.Get("does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHappyPathTransitions(t *testing.T) {
	l := newTestLedger(t)
	sig := testSignal()
	require.NoError(t, l.CreateQueued(sig))

	require.NoError(t, l.TransitionToExecuting(sig.TradeUUID))
	require.NoError(t, l.TransitionToActive(sig.TradeUUID, "sig111"))
	require.NoError(t, l.TransitionToExiting(sig.TradeUUID))
	require.NoError(t, l.TransitionToClosed(sig.TradeUUID))

	rec, err := l.Get(sig.TradeUUID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosed, rec.Status)
	require.NotNil(t, rec.TxSig)
	assert.Equal(t, "sig111", *rec.TxSig)
}

func TestTransitionToExecutingIsNotReentrant(t *testing.T) {
	l := newTestLedger(t)
	sig := testSignal()
	require.NoError(t, l.CreateQueued(sig))
	require.NoError(t, l.TransitionToExecuting(sig.TradeUUID))

	err := l.TransitionToExecuting(sig.TradeUUID)
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestFailedFromExecuting(t *testing.T) {
	l := newTestLedger(t)
	sig := testSignal()
	require.NoError(t, l.CreateQueued(sig))
	require.NoError(t, l.TransitionToExecuting(sig.TradeUUID))
	require.NoError(t, l.TransitionToFailed(sig.TradeUUID, "quote timeout"))

	rec, err := l.Get(sig.TradeUUID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, rec.Status)
	require.NotNil(t, rec.Error)
	assert.Equal(t, "quote timeout", *rec.Error)
}

func TestCannotSkipStates(t *testing.T) {
	l := newTestLedger(t)
	sig := testSignal()
	require.NoError(t, l.CreateQueued(sig))

	err := l.TransitionToActive(sig.TradeUUID, "sigxyz")
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestFindActiveByMintReturnsOnlyActiveRow(t *testing.T) {
	l := newTestLedger(t)
	sig := testSignal()
	require.NoError(t, l.CreateQueued(sig))

	_, err := l.FindActiveByMint(sig.TokenMint)
	assert.ErrorIs(t, err, ErrNotFound, "still QUEUED, not ACTIVE")

	require.NoError(t, l.TransitionToExecuting(sig.TradeUUID))
	require.NoError(t, l.TransitionToActive(sig.TradeUUID, "sig222"))

	rec, err := l.FindActiveByMint(sig.TokenMint)
	require.NoError(t, err)
	assert.Equal(t, sig.TradeUUID, rec.TradeUUID)
	assert.Equal(t, models.StatusActive, rec.Status)
}

func TestRegressExitingToActiveOnlyFromExiting(t *testing.T) {
	l := newTestLedger(t)
	sig := testSignal()
	require.NoError(t, l.CreateQueued(sig))
	require.NoError(t, l.TransitionToExecuting(sig.TradeUUID))

	err := l.RegressExitingToActive(sig.TradeUUID, "indeterminate after 3 attempts")
	assert.ErrorIs(t, err, ErrIllegalTransition)

	require.NoError(t, l.TransitionToActive(sig.TradeUUID, "sig1"))
	require.NoError(t, l.TransitionToExiting(sig.TradeUUID))
	require.NoError(t, l.RegressExitingToActive(sig.TradeUUID, "indeterminate after 3 attempts"))

	rec, err := l.Get(sig.TradeUUID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, rec.Status)
}

func TestListByStatus(t *testing.T) {
	l := newTestLedger(t)
	a := testSignal()
	b := testSignal()
	require.NoError(t, l.CreateQueued(a))
	require.NoError(t, l.CreateQueued(b))
	require.NoError(t, l.TransitionToExecuting(b.TradeUUID))

	queued, err := l.ListByStatus(models.StatusQueued)
	require.NoError(t, err)
	assert.Len(t, queued, 1)
	assert.Equal(t, a.TradeUUID, queued[0].TradeUUID)

	executing, err := l.ListByStatus(models.StatusExecuting, models.StatusExiting)
	require.NoError(t, err)
	assert.Len(t, executing, 1)
	assert.Equal(t, b.TradeUUID, executing[0].TradeUUID)
}
