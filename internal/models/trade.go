package models

import "time"

// TradeStatus is a node in the Trade Record status DAG:
//
//	QUEUED -> EXECUTING -> ACTIVE -> EXITING -> CLOSED
//	                    \-> FAILED         \-> FAILED
//
// A status only advances, except for the Recovery Sweeper's single allowed
// regression: EXITING -> ACTIVE.
type TradeStatus string

const (
	StatusQueued    TradeStatus = "QUEUED"
	StatusExecuting TradeStatus = "EXECUTING"
	StatusActive    TradeStatus = "ACTIVE"
	StatusExiting   TradeStatus = "EXITING"
	StatusClosed    TradeStatus = "CLOSED"
	StatusFailed    TradeStatus = "FAILED"
)

func (s TradeStatus) Terminal() bool {
	return s == StatusClosed || s == StatusFailed
}

// validAdvances enumerates the only forward edges of the DAG. Recovery's
// EXITING->ACTIVE regression is authorized separately, not listed here.
var validAdvances = map[TradeStatus][]TradeStatus{
	StatusQueued:    {StatusExecuting},
	StatusExecuting: {StatusActive, StatusFailed},
	StatusActive:    {StatusExiting},
	StatusExiting:   {StatusClosed, StatusFailed},
}

// CanAdvance reports whether from->to is a legal forward transition.
func CanAdvance(from, to TradeStatus) bool {
	for _, candidate := range validAdvances[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// TradeRecord is the authoritative row for a trade_uuid (C10).
type TradeRecord struct {
	TradeUUID string
	Status    TradeStatus
	TxSig     *string
	Error     *string
	CreatedAt time.Time
	UpdatedAt time.Time

	// Snapshot of the originating Signal.
	Strategy            Strategy
	Action              Action
	TokenMint           string
	DisplaySymbol       string
	SizeNative          string // decimal.Decimal serialized, avoids float round-trips
	LeaderWallet        string
	LeaderObservedPrice *string
	IngressTimestamp    time.Time
	Source              Source
}

// AuditEvent is one row of the append-only ledger audit trail.
type AuditEvent struct {
	ID        int64
	TradeUUID string
	Event     string
	Detail    string
	CreatedAt time.Time
}
