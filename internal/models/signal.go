package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Strategy classifies why a Signal exists. Priority order for the queue is
// Exit > Shield > Spear; this ordering is derived, never stored.
type Strategy string

const (
	StrategyShield Strategy = "Shield" // conservative Buy
	StrategySpear  Strategy = "Spear"  // aggressive Buy
	StrategyExit   Strategy = "Exit"   // close position
)

// Priority returns the strategy's place in the dequeue order. Lower is
// served first.
func (s Strategy) Priority() int {
	switch s {
	case StrategyExit:
		return 0
	case StrategyShield:
		return 1
	case StrategySpear:
		return 2
	default:
		return 3
	}
}

func (s Strategy) Valid() bool {
	switch s {
	case StrategyShield, StrategySpear, StrategyExit:
		return true
	}
	return false
}

// Action is the side of the trade.
type Action string

const (
	ActionBuy  Action = "Buy"
	ActionSell Action = "Sell"
)

// Source records where a Signal originated.
type Source string

const (
	SourceWebhook Source = "webhook"
	SourcePoll    Source = "poll"
	SourceExit    Source = "exit-detector"
)

// Signal is an intent to trade, handed from ingress to the Engine Loop.
//
// trade_uuid is unique across the lifetime of the position ledger; ingress
// assigns one if the caller did not supply it.
type Signal struct {
	TradeUUID           string
	Strategy            Strategy
	Action              Action
	TokenMint           string
	DisplaySymbol       string
	SizeNative          decimal.Decimal
	LeaderWallet        string
	LeaderObservedPrice *decimal.Decimal
	IngressTimestamp    time.Time
	Source              Source
}

// NewSignal assigns a trade_uuid if one was not supplied and stamps the
// ingress timestamp if the zero value was passed.
func NewSignal(s Signal) Signal {
	if s.TradeUUID == "" {
		s.TradeUUID = uuid.NewString()
	}
	if s.IngressTimestamp.IsZero() {
		s.IngressTimestamp = time.Now().UTC()
	}
	return s
}
