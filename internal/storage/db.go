// Package storage wraps the SQLite ledger database: trade records, the
// audit trail, circuit breaker transitions, and the leader-wallet roster.
package storage

import (
	"database/sql"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// DB wraps the single-file, WAL-journaled ledger database (§6: "Persisted
// state"). One process owns the *sql.DB; callers serialize writes through
// row-level transactions.
type DB struct {
	sqlDB *sql.DB
}

// Open creates or attaches the ledger database at path, applying the
// WAL/synchronous=NORMAL/busy_timeout pragmas the spec requires, then runs
// schema migrations.
func Open(path string) (*DB, error) {
	dsn := path
	if !strings.Contains(path, "?") {
		dsn += "?"
	} else {
		dsn += "&"
	}
	dsn += "_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	db := &DB{sqlDB: sqlDB}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, err
	}

	log.Info().Str("path", path).Msg("ledger database initialized")
	return db, nil
}

// Raw exposes the underlying *sql.DB for packages (roster merge) that need
// to ATTACH a second database file.
func (d *DB) Raw() *sql.DB { return d.sqlDB }

func (d *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS trades (
		trade_uuid TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		tx_signature TEXT,
		error TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		strategy TEXT NOT NULL,
		action TEXT NOT NULL,
		token_mint TEXT NOT NULL,
		display_symbol TEXT NOT NULL,
		size_native TEXT NOT NULL,
		leader_wallet TEXT NOT NULL,
		leader_observed_price TEXT,
		ingress_timestamp INTEGER NOT NULL,
		source TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_trades_status_updated ON trades(status, updated_at);

	CREATE TABLE IF NOT EXISTS audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		trade_uuid TEXT NOT NULL,
		event TEXT NOT NULL,
		detail TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_trade ON audit_log(trade_uuid);

	CREATE TABLE IF NOT EXISTS breaker_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		transition TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS recovery_attempts (
		trade_uuid TEXT PRIMARY KEY,
		attempts INTEGER NOT NULL DEFAULT 0,
		last_attempt_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS wallets (
		address TEXT PRIMARY KEY,
		status TEXT NOT NULL DEFAULT 'active',
		wqs_score REAL NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := d.sqlDB.Exec(schema); err != nil {
		return err
	}

	var count int
	if err := d.sqlDB.QueryRow(`SELECT COUNT(*) FROM schema_version`).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		if _, err := d.sqlDB.Exec(`INSERT INTO schema_version(version) VALUES (1)`); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying database handle.
func (d *DB) Close() error { return d.sqlDB.Close() }

// Now returns the current Unix timestamp (helper).
func Now() int64 { return time.Now().Unix() }
