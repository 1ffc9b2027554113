package tui

import (
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/chimera-labs/chimera-operator/internal/breaker"
	"github.com/chimera-labs/chimera-operator/internal/ledger"
	"github.com/chimera-labs/chimera-operator/internal/models"
	"github.com/chimera-labs/chimera-operator/internal/queue"
	"github.com/chimera-labs/chimera-operator/internal/storage"
	"github.com/shopspring/decimal"
)

func newTestModel(t *testing.T) Model {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "tui_test.db")
	db, err := storage.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	l := ledger.New(db)
	q := queue.New(queue.DefaultConfig())
	b := breaker.New(breaker.DefaultConfig(), db)
	return New(l, q, b)
}

func TestRefreshCmdPopulatesOpenTrades(t *testing.T) {
	m := newTestModel(t)

	sig := models.NewSignal(models.Signal{
		TradeUUID: "aaaaaaaa-0000-0000-0000-000000000000",
		Strategy:  models.StrategyShield,
		Action:    models.ActionBuy,
		TokenMint: "MintAAA",
		SizeNative: decimal.NewFromFloat(0.5),
	})
	require.NoError(t, m.ledger.CreateQueued(sig))

	msg := m.refreshCmd()()
	refresh, ok := msg.(refreshMsg)
	require.True(t, ok)
	require.NoError(t, refresh.err)
	require.Len(t, refresh.open, 1)
	require.Equal(t, breaker.StateClosed, refresh.state)
}

func TestKeyMsgSwitchesScreen(t *testing.T) {
	m := newTestModel(t)
	require.Equal(t, ScreenDashboard, m.Screen)

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("2")})
	next := updated.(Model)
	require.Equal(t, ScreenTrades, next.Screen)
}

func TestQuitKeyReturnsQuitCmd(t *testing.T) {
	m := newTestModel(t)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
}
