// Package breaker implements the process-wide Circuit Breaker (C7): a
// tripwire distinct from blockchain.RPCClient's own connection-level
// failure tracking. This breaker gates the Engine Loop's willingness to
// dispatch trades at all.
package breaker

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chimera-labs/chimera-operator/internal/storage"
)

// State is the breaker's tagged state, mirroring original_source's
// lib.rs re-export of CircuitBreakerState.
type State string

const (
	StateClosed   State = "Closed"
	StateOpen     State = "Open"
	StateHalfOpen State = "HalfOpen"
)

// TripReason labels why the breaker opened.
type TripReason string

const (
	ReasonConsecutiveFailures TripReason = "consecutive_failures"
	ReasonLossThreshold       TripReason = "loss_threshold_24h"
	ReasonManual              TripReason = "manual"
)

// Config bounds the breaker's trip/recovery behavior.
type Config struct {
	ConsecutiveFailureThreshold int
	LossThresholdLamports       int64
	CooldownPeriod              time.Duration
	HalfOpenProbeBudget         int
	HalfOpenSuccessesToClose    int
}

func DefaultConfig() Config {
	return Config{
		ConsecutiveFailureThreshold: 5,
		LossThresholdLamports:       0, // disabled unless configured
		CooldownPeriod:              2 * time.Minute,
		HalfOpenProbeBudget:         3,
		HalfOpenSuccessesToClose:    3,
	}
}

// Breaker is safe for concurrent use. Every transition is persisted to
// storage's breaker_events table for audit.
type Breaker struct {
	mu sync.Mutex
	cfg Config
	db  *storage.DB

	state              State
	reason             TripReason
	openedAt           time.Time
	consecutiveFailure int
	halfOpenSuccesses  int
	halfOpenProbesUsed int
	loss24h            int64
}

func New(cfg Config, db *storage.DB) *Breaker {
	return &Breaker{cfg: cfg, db: db, state: StateClosed}
}

// Allow reports whether the engine may dispatch a new trade. In
// HalfOpen, only cfg.HalfOpenProbeBudget trades are allowed through;
// further calls are refused until the breaker closes or reopens (a
// resolved probe does not free a slot).
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(b.openedAt) >= b.cfg.CooldownPeriod {
			b.transitionLocked(StateHalfOpen, "")
			b.halfOpenProbesUsed = 1
			return true
		}
		return false
	case StateHalfOpen:
		if b.halfOpenProbesUsed >= b.cfg.HalfOpenProbeBudget {
			return false
		}
		b.halfOpenProbesUsed++
		return true
	default:
		return false
	}
}

// RecordSuccess notifies the breaker a dispatched trade completed
// successfully.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailure = 0
	if b.state != StateHalfOpen {
		return
	}
	b.halfOpenSuccesses++
	if b.halfOpenSuccesses >= b.cfg.HalfOpenSuccessesToClose {
		b.transitionLocked(StateClosed, "")
		b.halfOpenSuccesses = 0
		b.halfOpenProbesUsed = 0
	}
}

// RecordFailure notifies the breaker a dispatched trade failed. Any
// failure while HalfOpen immediately reopens the breaker.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.transitionLocked(StateOpen, ReasonConsecutiveFailures)
		return
	}

	b.consecutiveFailure++
	if b.consecutiveFailure >= b.cfg.ConsecutiveFailureThreshold {
		b.transitionLocked(StateOpen, ReasonConsecutiveFailures)
	}
}

// RecordLoss accumulates a realized loss (lamports, positive magnitude)
// toward the loss threshold. Zero threshold disables this trip. The
// running total is never aged out or reset: it covers every loss
// recorded since the Breaker was constructed, not a trailing 24h window.
func (b *Breaker) RecordLoss(lamports int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cfg.LossThresholdLamports <= 0 {
		return
	}
	b.loss24h += lamports
	if b.loss24h >= b.cfg.LossThresholdLamports && b.state == StateClosed {
		b.transitionLocked(StateOpen, ReasonLossThreshold)
	}
}

// Trip manually opens the breaker, e.g. from an operator command.
func (b *Breaker) Trip(reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transitionLocked(StateOpen, TripReason(reason))
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// transitionLocked records and persists a state change. Callers hold b.mu.
func (b *Breaker) transitionLocked(to State, reason TripReason) {
	from := b.state
	b.state = to
	b.reason = reason
	if to == StateOpen {
		b.openedAt = time.Now()
	}

	log.Warn().Str("from", string(from)).Str("to", string(to)).Str("reason", string(reason)).Msg("circuit breaker transition")

	if b.db == nil {
		return
	}
	_, err := b.db.Raw().Exec(`INSERT INTO breaker_events (transition, reason, created_at) VALUES (?, ?, ?)`,
		string(from)+"->"+string(to), string(reason), time.Now().UTC().Unix())
	if err != nil {
		log.Error().Err(err).Msg("failed to persist breaker transition")
	}
}
