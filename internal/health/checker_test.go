package health

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chimera-labs/chimera-operator/internal/breaker"
	"github.com/chimera-labs/chimera-operator/internal/queue"
	"github.com/chimera-labs/chimera-operator/internal/storage"
)

func TestCheckReportsAllComponents(t *testing.T) {
	rpcSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) }))
	defer rpcSrv.Close()
	httpSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) }))
	defer httpSrv.Close()

	dbPath := filepath.Join(t.TempDir(), "health_test.db")
	db, err := storage.Open(dbPath)
	require.NoError(t, err)
	defer db.Close()

	q := queue.New(queue.DefaultConfig())
	b := breaker.New(breaker.DefaultConfig(), db)

	c := NewChecker(rpcSrv.URL, httpSrv.URL, db, q, b)
	c.check()

	statuses := c.GetStatuses()
	names := make(map[string]Status)
	for _, s := range statuses {
		names[s.Name] = s
	}

	assert.True(t, names["RPC"].Healthy)
	assert.True(t, names["Ingress"].Healthy)
	assert.True(t, names["Ledger"].Healthy)
	assert.True(t, names["Queue"].Healthy)
	assert.True(t, names["CircuitBreaker"].Healthy)
}

func TestCheckBreakerUnhealthyWhenOpen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "health_test2.db")
	db, err := storage.Open(dbPath)
	require.NoError(t, err)
	defer db.Close()

	b := breaker.New(breaker.DefaultConfig(), db)
	b.Trip("manual")

	c := NewChecker("http://127.0.0.1:0", "http://127.0.0.1:0", nil, nil, b)
	c.check()

	statuses := c.GetStatuses()
	require.Len(t, statuses, 3)
	found := false
	for _, s := range statuses {
		if s.Name == "CircuitBreaker" {
			found = true
			assert.False(t, s.Healthy)
		}
	}
	assert.True(t, found)
}
