package health

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/chimera-labs/chimera-operator/internal/breaker"
	"github.com/chimera-labs/chimera-operator/internal/queue"
	"github.com/chimera-labs/chimera-operator/internal/storage"
)

// Status represents the health status of a component
type Status struct {
	Name    string
	Healthy bool
	Latency time.Duration
	Error   string
	Detail  string
}

// Checker periodically checks health of system components: RPC
// reachability, the ingress HTTP listener, the ledger database, queue
// depth, and circuit breaker state.
type Checker struct {
	mu       sync.RWMutex
	statuses []Status
	rpcURL   string
	httpURL  string

	db      *storage.DB
	queue   *queue.Queue
	breaker *breaker.Breaker
}

// NewChecker creates a new health checker. db, q, and b are optional;
// a nil dependency skips that component's check.
func NewChecker(rpcURL, httpURL string, db *storage.DB, q *queue.Queue, b *breaker.Breaker) *Checker {
	return &Checker{
		rpcURL:  rpcURL,
		httpURL: httpURL,
		db:      db,
		queue:   q,
		breaker: b,
	}
}

// Start begins periodic health checks
func (c *Checker) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.check()
			}
		}
	}()

	// Initial check
	c.check()
}

func (c *Checker) check() {
	var statuses []Status

	statuses = append(statuses, c.checkRPC())
	statuses = append(statuses, c.checkHTTP())

	if c.db != nil {
		statuses = append(statuses, c.checkDB())
	}
	if c.queue != nil {
		statuses = append(statuses, c.checkQueue())
	}
	if c.breaker != nil {
		statuses = append(statuses, c.checkBreaker())
	}

	c.mu.Lock()
	c.statuses = statuses
	c.mu.Unlock()
}

func (c *Checker) checkRPC() Status {
	start := time.Now()

	client := &http.Client{Timeout: 5 * time.Second}
	req, _ := http.NewRequest("POST", c.rpcURL, nil)
	req.Header.Set("Content-Type", "application/json")

	_, err := client.Do(req)
	latency := time.Since(start)

	status := Status{
		Name:    "RPC",
		Latency: latency,
		Healthy: err == nil,
	}
	if err != nil {
		status.Error = err.Error()
	}
	return status
}

func (c *Checker) checkHTTP() Status {
	start := time.Now()

	client := &http.Client{Timeout: 5 * time.Second}
	_, err := client.Get(c.httpURL + "/health")
	latency := time.Since(start)

	status := Status{
		Name:    "Ingress",
		Latency: latency,
		Healthy: err == nil,
	}
	if err != nil {
		status.Error = err.Error()
	}
	return status
}

func (c *Checker) checkDB() Status {
	start := time.Now()
	err := c.db.Raw().Ping()
	status := Status{
		Name:    "Ledger",
		Latency: time.Since(start),
		Healthy: err == nil,
	}
	if err != nil {
		status.Error = err.Error()
	}
	return status
}

func (c *Checker) checkQueue() Status {
	exit, shield, spear := c.queue.DepthByClass()
	return Status{
		Name:    "Queue",
		Healthy: true,
		Detail:  formatQueueDetail(exit, shield, spear),
	}
}

func (c *Checker) checkBreaker() Status {
	state := c.breaker.State()
	return Status{
		Name:    "CircuitBreaker",
		Healthy: state != breaker.StateOpen,
		Detail:  string(state),
	}
}

func formatQueueDetail(exit, shield, spear int) string {
	return "exit=" + strconv.Itoa(exit) + " shield=" + strconv.Itoa(shield) + " spear=" + strconv.Itoa(spear)
}

// GetStatuses returns current health statuses
func (c *Checker) GetStatuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.statuses
}
