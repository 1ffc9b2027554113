package recovery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/chimera-labs/chimera-operator/internal/blockchain"
	"github.com/chimera-labs/chimera-operator/internal/ledger"
	"github.com/chimera-labs/chimera-operator/internal/models"
	"github.com/chimera-labs/chimera-operator/internal/storage"
)

func signatureStatusServer(t *testing.T, status string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var value interface{}
		switch status {
		case "SUCCESS":
			value = []map[string]interface{}{{"slot": 1, "confirmationStatus": "finalized", "confirmations": nil, "err": nil}}
		case "FAILED":
			value = []map[string]interface{}{{"slot": 1, "confirmationStatus": "finalized", "confirmations": nil, "err": map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}}}
		case "NOT_FOUND":
			value = []interface{}{nil}
		}
		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      1,
			"result":  map[string]interface{}{"value": value},
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func newTestSweeper(t *testing.T, status string) (*Sweeper, *ledger.Ledger) {
	t.Helper()
	srv := signatureStatusServer(t, status)
	t.Cleanup(srv.Close)

	dbPath := filepath.Join(t.TempDir(), "recovery_test.db")
	db, err := storage.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(); os.Remove(dbPath) })

	l := ledger.New(db)
	rpc := blockchain.NewRPCClient(srv.URL, srv.URL, "")

	cfg := DefaultConfig()
	cfg.StalenessThreshold = 0
	cfg.MaxIndeterminate = 2
	return New(cfg, db, rpc, l), l
}

func queuedToExecuting(t *testing.T, l *ledger.Ledger, mint string) string {
	t.Helper()
	sig := models.NewSignal(models.Signal{
		Strategy:   models.StrategySpear,
		Action:     models.ActionBuy,
		TokenMint:  mint,
		SizeNative: decimal.NewFromFloat(0.1),
		Source:     models.SourceWebhook,
	})
	require.NoError(t, l.CreateQueued(sig))
	require.NoError(t, l.TransitionToExecuting(sig.TradeUUID))
	return sig.TradeUUID
}

func TestResolveStuckExecutingSuccessAdvancesToActive(t *testing.T) {
	s, l := newTestSweeper(t, "SUCCESS")
	tradeUUID := queuedToExecuting(t, l, "Mint1")
	rec, err := l.Get(tradeUUID)
	require.NoError(t, err)
	txSig := "sig1"
	rec.TxSig = &txSig
	rec.UpdatedAt = time.Now().Add(-time.Minute)

	s.resolve(context.Background(), rec)

	updated, err := l.Get(tradeUUID)
	require.NoError(t, err)
	require.Equal(t, models.StatusActive, updated.Status)
}

func TestResolveStuckExecutingFailedMarksFailed(t *testing.T) {
	s, l := newTestSweeper(t, "FAILED")
	tradeUUID := queuedToExecuting(t, l, "Mint2")
	rec, err := l.Get(tradeUUID)
	require.NoError(t, err)
	txSig := "sig2"
	rec.TxSig = &txSig

	s.resolve(context.Background(), rec)

	updated, err := l.Get(tradeUUID)
	require.NoError(t, err)
	require.Equal(t, models.StatusFailed, updated.Status)
}

func TestIndeterminateExhaustsRetriesAndFails(t *testing.T) {
	s, l := newTestSweeper(t, "NOT_FOUND")
	tradeUUID := queuedToExecuting(t, l, "Mint3")
	rec, err := l.Get(tradeUUID)
	require.NoError(t, err)
	txSig := "sig3"
	rec.TxSig = &txSig

	s.resolve(context.Background(), rec)
	updated, err := l.Get(tradeUUID)
	require.NoError(t, err)
	require.Equal(t, models.StatusExecuting, updated.Status, "should still be pending after first indeterminate attempt")

	s.resolve(context.Background(), rec)
	updated, err = l.Get(tradeUUID)
	require.NoError(t, err)
	require.Equal(t, models.StatusFailed, updated.Status, "should fail once MaxIndeterminate is reached")
}

func TestMissingTxSigIsIndeterminate(t *testing.T) {
	s, l := newTestSweeper(t, "NOT_FOUND")
	tradeUUID := queuedToExecuting(t, l, "Mint4")
	rec, err := l.Get(tradeUUID)
	require.NoError(t, err)
	require.Nil(t, rec.TxSig)

	s.resolve(context.Background(), rec)
	s.resolve(context.Background(), rec)

	updated, err := l.Get(tradeUUID)
	require.NoError(t, err)
	require.Equal(t, models.StatusFailed, updated.Status)
}

func TestSweepSkipsFreshTrades(t *testing.T) {
	s, l := newTestSweeper(t, "SUCCESS")
	s.cfg.StalenessThreshold = time.Hour
	tradeUUID := queuedToExecuting(t, l, "Mint5")

	s.Sweep(context.Background())

	updated, err := l.Get(tradeUUID)
	require.NoError(t, err)
	require.Equal(t, models.StatusExecuting, updated.Status, "fresh trades should not be swept")
}
