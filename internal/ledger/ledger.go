// Package ledger implements the Position Ledger (C10): the authoritative,
// single-writer-per-row record of a trade's lifecycle, enforced by the
// status-transition DAG in models.TradeStatus.
package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chimera-labs/chimera-operator/internal/models"
	"github.com/chimera-labs/chimera-operator/internal/storage"
)

// ErrNotFound is returned when a trade_uuid has no row.
var ErrNotFound = errors.New("ledger: trade not found")

// ErrIllegalTransition is returned when a caller attempts a transition not
// permitted by the status DAG.
var ErrIllegalTransition = errors.New("ledger: illegal status transition")

// Ledger serializes status transitions per trade_uuid via an in-process
// mutex; the underlying SQLite row-level transaction is the durable source
// of truth (§5: "Ledger DB ... writers take row locks via transactions").
type Ledger struct {
	db *storage.DB
	mu sync.Mutex
}

func New(db *storage.DB) *Ledger {
	return &Ledger{db: db}
}

// CreateQueued inserts a new QUEUED row for signal. Returns an error if
// trade_uuid already exists (invariant: unique across the ledger's
// lifetime).
func (l *Ledger) CreateQueued(signal models.Signal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now().UTC()
	var observedPrice *string
	if signal.LeaderObservedPrice != nil {
		s := signal.LeaderObservedPrice.String()
		observedPrice = &s
	}

	_, err := l.db.Raw().Exec(`
		INSERT INTO trades (
			trade_uuid, status, tx_signature, error, created_at, updated_at,
			strategy, action, token_mint, display_symbol, size_native,
			leader_wallet, leader_observed_price, ingress_timestamp, source
		) VALUES (?, ?, NULL, NULL, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		signal.TradeUUID, models.StatusQueued, now.Unix(), now.Unix(),
		signal.Strategy, signal.Action, signal.TokenMint, signal.DisplaySymbol,
		signal.SizeNative.String(), signal.LeaderWallet, observedPrice,
		signal.IngressTimestamp.Unix(), signal.Source,
	)
	if err != nil {
		return fmt.Errorf("ledger: create queued: %w", err)
	}
	l.audit(signal.TradeUUID, "QUEUED", "")
	return nil
}

// Get fetches a single trade record.
func (l *Ledger) Get(tradeUUID string) (*models.TradeRecord, error) {
	row := l.db.Raw().QueryRow(`
		SELECT trade_uuid, status, tx_signature, error, created_at, updated_at,
		       strategy, action, token_mint, display_symbol, size_native,
		       leader_wallet, leader_observed_price, ingress_timestamp, source
		FROM trades WHERE trade_uuid = ?`, tradeUUID)
	return scanTrade(row)
}

// ListByStatus returns all rows whose status is any of the given statuses.
func (l *Ledger) ListByStatus(statuses ...models.TradeStatus) ([]*models.TradeRecord, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	query := `SELECT trade_uuid, status, tx_signature, error, created_at, updated_at,
	       strategy, action, token_mint, display_symbol, size_native,
	       leader_wallet, leader_observed_price, ingress_timestamp, source
	FROM trades WHERE status IN (`
	args := make([]interface{}, 0, len(statuses))
	for i, s := range statuses {
		if i > 0 {
			query += ","
		}
		query += "?"
		args = append(args, s)
	}
	query += ")"

	rows, err := l.db.Raw().Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.TradeRecord
	for rows.Next() {
		rec, err := scanTradeRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// FindActiveByMint returns the ACTIVE position for tokenMint, used to
// correlate an incoming Exit signal (which carries no trade_uuid of its
// own position) back to the row that opened it. Only one ACTIVE
// position per mint is assumed to exist at a time; if more than one
// somehow does, the most recently updated row wins.
func (l *Ledger) FindActiveByMint(tokenMint string) (*models.TradeRecord, error) {
	row := l.db.Raw().QueryRow(`
		SELECT trade_uuid, status, tx_signature, error, created_at, updated_at,
		       strategy, action, token_mint, display_symbol, size_native,
		       leader_wallet, leader_observed_price, ingress_timestamp, source
		FROM trades WHERE token_mint = ? AND status = ?
		ORDER BY updated_at DESC LIMIT 1`, tokenMint, models.StatusActive)
	return scanTrade(row)
}

// TransitionToExecuting moves QUEUED -> EXECUTING. Idempotent: if the row
// is already past EXECUTING, returns ErrIllegalTransition so the Executor
// can treat it as "already handled" (§4.8 idempotency contract).
func (l *Ledger) TransitionToExecuting(tradeUUID string) error {
	return l.advance(tradeUUID, models.StatusExecuting, nil, nil)
}

// TransitionToActive moves EXECUTING -> ACTIVE, recording the immutable
// tx_signature (invariant I2).
func (l *Ledger) TransitionToActive(tradeUUID, txSig string) error {
	return l.advance(tradeUUID, models.StatusActive, &txSig, nil)
}

// TransitionToExiting moves ACTIVE -> EXITING.
func (l *Ledger) TransitionToExiting(tradeUUID string) error {
	return l.advance(tradeUUID, models.StatusExiting, nil, nil)
}

// TransitionToClosed moves EXITING -> CLOSED.
func (l *Ledger) TransitionToClosed(tradeUUID string) error {
	return l.advance(tradeUUID, models.StatusClosed, nil, nil)
}

// TransitionToFailed moves EXECUTING or EXITING -> FAILED with a reason.
func (l *Ledger) TransitionToFailed(tradeUUID, reason string) error {
	return l.advance(tradeUUID, models.StatusFailed, nil, &reason)
}

func (l *Ledger) advance(tradeUUID string, to models.TradeStatus, txSig, reason *string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	current, err := l.get(tradeUUID)
	if err != nil {
		return err
	}
	if !models.CanAdvance(current.Status, to) {
		return fmt.Errorf("%w: %s -> %s (trade %s)", ErrIllegalTransition, current.Status, to, tradeUUID)
	}

	now := time.Now().UTC().Unix()
	query := `UPDATE trades SET status = ?, updated_at = ?`
	args := []interface{}{to, now}
	if txSig != nil {
		query += `, tx_signature = ?`
		args = append(args, *txSig)
	}
	if reason != nil {
		query += `, error = ?`
		args = append(args, *reason)
	}
	query += ` WHERE trade_uuid = ?`
	args = append(args, tradeUUID)

	if _, err := l.db.Raw().Exec(query, args...); err != nil {
		return fmt.Errorf("ledger: advance: %w", err)
	}

	detail := ""
	if reason != nil {
		detail = *reason
	}
	l.audit(tradeUUID, string(to), detail)
	return nil
}

// RegressExitingToActive is the sole permitted state regression, reserved
// for the Recovery Sweeper (C11, invariant I1).
func (l *Ledger) RegressExitingToActive(tradeUUID, actionLabel string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	current, err := l.get(tradeUUID)
	if err != nil {
		return err
	}
	if current.Status != models.StatusExiting {
		return fmt.Errorf("%w: regression only valid from EXITING (trade %s is %s)", ErrIllegalTransition, tradeUUID, current.Status)
	}

	now := time.Now().UTC().Unix()
	if _, err := l.db.Raw().Exec(`UPDATE trades SET status = ?, updated_at = ? WHERE trade_uuid = ?`,
		models.StatusActive, now, tradeUUID); err != nil {
		return fmt.Errorf("ledger: regress: %w", err)
	}
	l.audit(tradeUUID, "RegressedToActive", actionLabel)
	return nil
}

func (l *Ledger) get(tradeUUID string) (*models.TradeRecord, error) {
	row := l.db.Raw().QueryRow(`
		SELECT trade_uuid, status, tx_signature, error, created_at, updated_at,
		       strategy, action, token_mint, display_symbol, size_native,
		       leader_wallet, leader_observed_price, ingress_timestamp, source
		FROM trades WHERE trade_uuid = ?`, tradeUUID)
	return scanTrade(row)
}

func (l *Ledger) audit(tradeUUID, event, detail string) {
	_, err := l.db.Raw().Exec(`INSERT INTO audit_log (trade_uuid, event, detail, created_at) VALUES (?, ?, ?, ?)`,
		tradeUUID, event, detail, time.Now().UTC().Unix())
	if err != nil {
		log.Error().Err(err).Str("tradeUUID", tradeUUID).Str("event", event).Msg("failed to write audit row")
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTrade(row *sql.Row) (*models.TradeRecord, error) {
	return scanGeneric(row)
}

func scanTradeRows(rows *sql.Rows) (*models.TradeRecord, error) {
	return scanGeneric(rows)
}

func scanGeneric(s rowScanner) (*models.TradeRecord, error) {
	var rec models.TradeRecord
	var createdAt, updatedAt, ingressTs int64
	var txSig, errStr, observedPrice sql.NullString

	err := s.Scan(
		&rec.TradeUUID, &rec.Status, &txSig, &errStr, &createdAt, &updatedAt,
		&rec.Strategy, &rec.Action, &rec.TokenMint, &rec.DisplaySymbol, &rec.SizeNative,
		&rec.LeaderWallet, &observedPrice, &ingressTs, &rec.Source,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rec.CreatedAt = time.Unix(createdAt, 0).UTC()
	rec.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	rec.IngressTimestamp = time.Unix(ingressTs, 0).UTC()
	if txSig.Valid {
		rec.TxSig = &txSig.String
	}
	if errStr.Valid {
		rec.Error = &errStr.String
	}
	if observedPrice.Valid {
		rec.LeaderObservedPrice = &observedPrice.String
	}
	return &rec, nil
}
