// Package walletperf tracks per-leader-wallet copy performance: signal
// success rate and accumulated PnL, used to auto-demote leaders whose
// copied trades have gone negative and to fast-track ones with a
// strong track record. Advisory only — it never gates the Executor or
// Circuit Breaker, only the Roster Merger's wallet status.
package walletperf

import (
	"database/sql"
	"sync"
	"time"

	"github.com/chimera-labs/chimera-operator/internal/storage"
)

// DemoteAfter and PromoteSuccessRate/PromoteMinTrades match
// original_source/monitoring/wallet_performance.rs's should_demote /
// should_promote_faster thresholds.
const (
	DemoteAfter          = 14 * 24 * time.Hour
	PromoteSuccessRate   = 70.0
	PromoteMinTrades     = 10
)

// Metrics is one leader wallet's rolling copy-trading performance.
type Metrics struct {
	Wallet            string
	CopyPnLSOL        float64
	TotalTrades       int
	WinningTrades     int
	SuccessRatePct    float64
	NegativeSince     time.Time
	LastUpdated       time.Time
}

// Tracker persists per-wallet metrics in the ledger database's
// wallet_performance table.
type Tracker struct {
	mu sync.Mutex
	db *storage.DB
}

func New(db *storage.DB) *Tracker {
	return &Tracker{db: db}
}

// EnsureSchema creates the wallet_performance table if absent. Called
// once at startup; kept out of storage.DB's own migration so this
// advisory feature can be dropped without touching the core schema.
func (t *Tracker) EnsureSchema() error {
	_, err := t.db.Raw().Exec(`
		CREATE TABLE IF NOT EXISTS wallet_performance (
			wallet TEXT PRIMARY KEY,
			copy_pnl_sol REAL NOT NULL DEFAULT 0,
			total_trades INTEGER NOT NULL DEFAULT 0,
			winning_trades INTEGER NOT NULL DEFAULT 0,
			negative_since INTEGER,
			last_updated INTEGER NOT NULL
		);
	`)
	return err
}

// RecordTradeResult updates wallet's rolling metrics after one copied
// trade resolves. pnlSOL > 0 counts as a win.
func (t *Tracker) RecordTradeResult(wallet string, pnlSOL float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	m, err := t.get(wallet)
	if err != nil {
		return err
	}

	m.TotalTrades++
	if pnlSOL > 0 {
		m.WinningTrades++
	}
	m.CopyPnLSOL += pnlSOL
	m.SuccessRatePct = 100 * float64(m.WinningTrades) / float64(m.TotalTrades)

	now := time.Now()
	if m.CopyPnLSOL < 0 {
		if m.NegativeSince.IsZero() {
			m.NegativeSince = now
		}
	} else {
		m.NegativeSince = time.Time{}
	}
	m.LastUpdated = now

	return t.put(m)
}

// GetMetrics returns wallet's current metrics, or the zero value if
// never recorded.
func (t *Tracker) GetMetrics(wallet string) (Metrics, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.get(wallet)
}

// ShouldDemote reports whether wallet's copy PnL has been negative for
// at least DemoteAfter.
func (t *Tracker) ShouldDemote(wallet string) (bool, error) {
	m, err := t.GetMetrics(wallet)
	if err != nil {
		return false, err
	}
	if m.NegativeSince.IsZero() {
		return false, nil
	}
	return time.Since(m.NegativeSince) >= DemoteAfter, nil
}

// ShouldPromoteFaster reports whether wallet's track record clears the
// fast-promotion bar.
func (t *Tracker) ShouldPromoteFaster(wallet string) (bool, error) {
	m, err := t.GetMetrics(wallet)
	if err != nil {
		return false, err
	}
	return m.TotalTrades >= PromoteMinTrades && m.SuccessRatePct >= PromoteSuccessRate, nil
}

func (t *Tracker) get(wallet string) (Metrics, error) {
	row := t.db.Raw().QueryRow(`
		SELECT wallet, copy_pnl_sol, total_trades, winning_trades, negative_since, last_updated
		FROM wallet_performance WHERE wallet = ?`, wallet)

	var m Metrics
	var negativeSince sql.NullInt64
	var lastUpdated int64
	if err := row.Scan(&m.Wallet, &m.CopyPnLSOL, &m.TotalTrades, &m.WinningTrades, &negativeSince, &lastUpdated); err != nil {
		if err == sql.ErrNoRows {
			return Metrics{Wallet: wallet}, nil
		}
		return Metrics{}, err
	}
	if negativeSince.Valid {
		m.NegativeSince = time.Unix(negativeSince.Int64, 0)
	}
	m.LastUpdated = time.Unix(lastUpdated, 0)
	if m.TotalTrades > 0 {
		m.SuccessRatePct = 100 * float64(m.WinningTrades) / float64(m.TotalTrades)
	}
	return m, nil
}

func (t *Tracker) put(m Metrics) error {
	var negativeSince interface{}
	if !m.NegativeSince.IsZero() {
		negativeSince = m.NegativeSince.Unix()
	}
	_, err := t.db.Raw().Exec(`
		INSERT INTO wallet_performance (wallet, copy_pnl_sol, total_trades, winning_trades, negative_since, last_updated)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(wallet) DO UPDATE SET
			copy_pnl_sol = excluded.copy_pnl_sol,
			total_trades = excluded.total_trades,
			winning_trades = excluded.winning_trades,
			negative_since = excluded.negative_since,
			last_updated = excluded.last_updated
	`, m.Wallet, m.CopyPnLSOL, m.TotalTrades, m.WinningTrades, negativeSince, m.LastUpdated.Unix())
	return err
}
