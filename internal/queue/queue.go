// Package queue implements the Priority Queue (C6): a bounded,
// three-class FIFO feeding the Engine Loop, with load shedding under
// pressure. Spear signals are shed once fill reaches the threshold;
// Shield and Exit signals are rejected only at hard capacity.
package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/chimera-labs/chimera-operator/internal/models"
)

// ErrLoadShed is returned by Push when the signal was rejected to
// protect the queue from unbounded growth.
var ErrLoadShed = errors.New("queue: signal load-shed")

// ErrClosed is returned by Push/Pop once the queue has been closed for
// a graceful shutdown drain.
var ErrClosed = errors.New("queue: closed")

// Config bounds queue capacity and the load-shed threshold.
type Config struct {
	Capacity            int
	SpearShedThresholdPercent float64 // Spear rejected once fill% reaches this
}

func DefaultConfig() Config {
	return Config{Capacity: 500, SpearShedThresholdPercent: 80.0}
}

// Queue holds three FIFO lanes, served strictly Exit > Shield > Spear.
type Queue struct {
	cfg Config

	mu     sync.Mutex
	cond   *sync.Cond
	exit   []models.Signal
	shield []models.Signal
	spear  []models.Signal
	closed bool
}

func New(cfg Config) *Queue {
	q := &Queue{cfg: cfg}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *Queue) depthLocked() int {
	return len(q.exit) + len(q.shield) + len(q.spear)
}

// Push admits a signal into its strategy's lane, unless the queue is
// closed or the signal is shed under load. Exit signals are only
// rejected when the queue is at hard capacity; Shield the same; Spear
// sheds earlier, once fill reaches SpearShedThresholdPercent.
func (q *Queue) Push(sig models.Signal) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}

	depth := q.depthLocked()
	fillPercent := 100.0 * float64(depth) / float64(q.cfg.Capacity)

	switch sig.Strategy {
	case models.StrategySpear:
		if fillPercent >= q.cfg.SpearShedThresholdPercent {
			return ErrLoadShed
		}
		q.spear = append(q.spear, sig)
	case models.StrategyExit:
		if depth >= q.cfg.Capacity {
			return ErrLoadShed
		}
		q.exit = append(q.exit, sig)
	default: // Shield and anything else
		if depth >= q.cfg.Capacity {
			return ErrLoadShed
		}
		q.shield = append(q.shield, sig)
	}

	q.cond.Signal()
	return nil
}

// Pop blocks until a signal is available, the context is cancelled, or
// the queue is closed and drained. Exit lane is served first, then
// Shield, then Spear.
func (q *Queue) Pop(ctx context.Context) (models.Signal, error) {
	stop := context.AfterFunc(ctx, q.cond.Broadcast)
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if sig, ok := q.popOneLocked(); ok {
			return sig, nil
		}
		if q.closed {
			return models.Signal{}, ErrClosed
		}
		select {
		case <-ctx.Done():
			return models.Signal{}, ctx.Err()
		default:
		}
		q.cond.Wait()
	}
}

func (q *Queue) popOneLocked() (models.Signal, bool) {
	if len(q.exit) > 0 {
		sig := q.exit[0]
		q.exit = q.exit[1:]
		return sig, true
	}
	if len(q.shield) > 0 {
		sig := q.shield[0]
		q.shield = q.shield[1:]
		return sig, true
	}
	if len(q.spear) > 0 {
		sig := q.spear[0]
		q.spear = q.spear[1:]
		return sig, true
	}
	return models.Signal{}, false
}

// Depth reports the approximate total queue depth across all lanes.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.depthLocked()
}

// DepthByClass reports per-lane depth for dashboard/health reporting.
func (q *Queue) DepthByClass() (exit, shield, spear int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.exit), len(q.shield), len(q.spear)
}

// Close makes every later Push return ErrClosed; Pop calls still drain
// whatever remains, then return ErrClosed.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
