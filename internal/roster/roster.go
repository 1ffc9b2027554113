// Package roster implements the Roster Merger (C12): merges an
// externally produced wallet roster (address, status, wqs_score) into
// the main ledger database using SQLite's ATTACH DATABASE pattern,
// grounded in original_source's roster::merge_roster and its
// roster_merge_tests.rs integration tests.
package roster

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/chimera-labs/chimera-operator/internal/storage"
	"github.com/chimera-labs/chimera-operator/internal/walletperf"
)

// Result reports the outcome of a single merge.
type Result struct {
	WalletsMerged int
	IntegrityOK   bool
	Warnings      []string
}

// Merger serializes merges against one ledger database; ATTACH is not
// safe to run concurrently from multiple goroutines on the same
// connection pool.
type Merger struct {
	mu   sync.Mutex
	db   *storage.DB
	perf *walletperf.Tracker
}

func New(db *storage.DB) *Merger {
	return &Merger{db: db}
}

// SetPerfTracker attaches a walletperf.Tracker so that merged wallets
// flagged for auto-demotion (negative copy PnL for 14+ days) are
// written in as "demoted" rather than whatever status the incoming
// roster carried. Advisory only: leaving this unset just skips the
// demotion pass.
func (m *Merger) SetPerfTracker(t *walletperf.Tracker) {
	m.perf = t
}

// Merge attaches rosterPath as an auxiliary database, verifies it
// passes an integrity check and carries a wallets table, then upserts
// every row into the main wallets table by address inside one
// transaction. Merge only reads from the attached file, but the ATTACH
// itself is not read-only: SQLite opens it read-write.
func (m *Merger) Merge(ctx context.Context, rosterPath string) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result Result

	conn, err := m.db.Raw().Conn(ctx)
	if err != nil {
		return result, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, fmt.Sprintf("ATTACH DATABASE %s AS roster_in", quoteLiteral(rosterPath))); err != nil {
		return result, fmt.Errorf("attach roster database: %w", err)
	}
	defer func() {
		if _, err := conn.ExecContext(ctx, "DETACH DATABASE roster_in"); err != nil {
			log.Error().Err(err).Msg("roster: failed to detach roster_in")
		}
	}()

	var integrityResult string
	if err := conn.QueryRowContext(ctx, "PRAGMA roster_in.integrity_check").Scan(&integrityResult); err != nil {
		return result, fmt.Errorf("integrity check: %w", err)
	}
	if integrityResult != "ok" {
		return result, fmt.Errorf("roster database failed integrity check: %s", integrityResult)
	}
	result.IntegrityOK = true

	var tableName string
	err = conn.QueryRowContext(ctx, "SELECT name FROM roster_in.sqlite_master WHERE type='table' AND name='wallets'").Scan(&tableName)
	if err == sql.ErrNoRows {
		return result, fmt.Errorf("roster database has no wallets table")
	}
	if err != nil {
		return result, fmt.Errorf("checking roster schema: %w", err)
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, "SELECT address, status, wqs_score FROM roster_in.wallets")
	if err != nil {
		return result, fmt.Errorf("read roster wallets: %w", err)
	}

	type walletRow struct {
		address string
		status  string
		score   sql.NullFloat64
	}
	var wallets []walletRow
	for rows.Next() {
		var w walletRow
		if err := rows.Scan(&w.address, &w.status, &w.score); err != nil {
			rows.Close()
			return result, fmt.Errorf("scan roster wallet: %w", err)
		}
		wallets = append(wallets, w)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return result, err
	}
	rows.Close()

	now := storage.Now()
	for _, w := range wallets {
		score := 0.0
		if w.score.Valid {
			score = w.score.Float64
		} else {
			result.Warnings = append(result.Warnings, fmt.Sprintf("wallet %s has no wqs_score, defaulting to 0", w.address))
		}

		status := w.status
		if m.perf != nil {
			if demote, err := m.perf.ShouldDemote(w.address); err == nil && demote {
				status = "demoted"
				result.Warnings = append(result.Warnings, fmt.Sprintf("wallet %s auto-demoted: negative copy PnL for 14+ days", w.address))
			}
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO wallets (address, status, wqs_score, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(address) DO UPDATE SET
				status = excluded.status,
				wqs_score = excluded.wqs_score,
				updated_at = excluded.updated_at
		`, w.address, status, score, now)
		if err != nil {
			return result, fmt.Errorf("upsert wallet %s: %w", w.address, err)
		}
		result.WalletsMerged++
	}

	if err := tx.Commit(); err != nil {
		return result, fmt.Errorf("commit merge: %w", err)
	}

	log.Info().Int("merged", result.WalletsMerged).Str("roster", rosterPath).Msg("roster: merge complete")
	return result, nil
}

// quoteLiteral embeds a filesystem path as a single-quoted SQL string
// literal for ATTACH DATABASE, which does not accept bound parameters
// in this position.
func quoteLiteral(path string) string {
	escaped := ""
	for _, r := range path {
		if r == '\'' {
			escaped += "''"
		} else {
			escaped += string(r)
		}
	}
	return "'" + escaped + "'"
}
