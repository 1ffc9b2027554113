package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/chimera-labs/chimera-operator/internal/breaker"
	"github.com/chimera-labs/chimera-operator/internal/ledger"
	"github.com/chimera-labs/chimera-operator/internal/models"
	"github.com/chimera-labs/chimera-operator/internal/queue"
)

// --- CLONE THEME (CROSSTERM) ---
var (
	ColorBg           = lipgloss.Color("#0f1c2e")
	ColorBorder       = lipgloss.Color("#2e7de9")
	ColorText         = lipgloss.Color("#a9b1d6")
	ColorAccentGreen  = lipgloss.Color("#41a6b5")
	ColorAccentPurple = lipgloss.Color("#bd93f9")
	ColorActive       = lipgloss.Color("#7aa2f7")

	ColorSuccess = lipgloss.Color("#73daca")
	ColorWarning = lipgloss.Color("#ff9e64")
	ColorError   = lipgloss.Color("#f7768e")
	ColorInfo    = lipgloss.Color("#7dcfff")
	ColorProfit  = lipgloss.Color("#9ece6a")
	ColorLoss    = lipgloss.Color("#f7768e")

	StylePage = lipgloss.NewStyle().
			Background(ColorBg).
			Foreground(ColorText)

	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorActive)

	StyleKey = lipgloss.NewStyle().
			Foreground(ColorAccentPurple).
			Bold(true)

	StyleProfit   = lipgloss.NewStyle().Foreground(ColorProfit)
	StyleLoss     = lipgloss.NewStyle().Foreground(ColorLoss)
	StyleHelpText = lipgloss.NewStyle().Foreground(ColorAccentPurple).Italic(true)

	ColorGray        = ColorText
	StyleTableHeader = lipgloss.NewStyle().Foreground(ColorActive).Bold(true)
	StyleFooter      = lipgloss.NewStyle().Foreground(ColorText)
	StyleModal       = lipgloss.NewStyle().
				Border(lipgloss.NormalBorder()).
				BorderForeground(ColorBorder).
				Padding(1, 2)
)

func RenderHotKey(k, d string) string {
	return StyleKey.Render("["+k+"]") + d
}

// Screen identifies which dashboard pane is focused.
type Screen string

const (
	ScreenDashboard Screen = "dashboard"
	ScreenTrades    Screen = "trades"
)

type KeyMap struct {
	Trades, Dashboard, Theme, Quit key.Binding
}

var keys = KeyMap{
	Dashboard: key.NewBinding(key.WithKeys("1")),
	Trades:    key.NewBinding(key.WithKeys("2")),
	Theme:     key.NewBinding(key.WithKeys("t")),
	Quit:      key.NewBinding(key.WithKeys("q", "ctrl+c")),
}

// Model is a read-only operator dashboard: it polls the ledger, the
// queue and the circuit breaker on a timer and renders their current
// state. It never mutates pipeline state.
type Model struct {
	ledger  *ledger.Ledger
	queue   *queue.Queue
	breaker *breaker.Breaker

	Screen Screen
	Width  int
	Height int

	openTrades  []*models.TradeRecord
	recentClosed []*models.TradeRecord
	breakerState breaker.State
	exitDepth, shieldDepth, spearDepth int

	lastErr error
}

// New builds the dashboard model against the three components an
// operator needs live visibility into: the ledger (C10), the queue
// (C6) and the circuit breaker (C7).
func New(l *ledger.Ledger, q *queue.Queue, b *breaker.Breaker) Model {
	return Model{
		ledger:  l,
		queue:   q,
		breaker: b,
		Screen:  ScreenDashboard,
	}
}

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), m.refreshCmd())
}

type refreshMsg struct {
	open    []*models.TradeRecord
	closed  []*models.TradeRecord
	state   breaker.State
	exit    int
	shield  int
	spear   int
	err     error
}

func (m Model) refreshCmd() tea.Cmd {
	return func() tea.Msg {
		open, err := m.ledger.ListByStatus(models.StatusQueued, models.StatusExecuting, models.StatusActive, models.StatusExiting)
		if err != nil {
			return refreshMsg{err: err}
		}
		closed, err := m.ledger.ListByStatus(models.StatusClosed, models.StatusFailed)
		if err != nil {
			return refreshMsg{err: err}
		}
		exit, shield, spear := m.queue.DepthByClass()
		return refreshMsg{
			open:   open,
			closed: closed,
			state:  m.breaker.State(),
			exit:   exit,
			shield: shield,
			spear:  spear,
		}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width, m.Height = msg.Width, msg.Height
		return m, nil

	case tickMsg:
		return m, tea.Batch(tickCmd(), m.refreshCmd())

	case refreshMsg:
		m.lastErr = msg.err
		if msg.err == nil {
			m.openTrades = msg.open
			m.recentClosed = truncateTrades(msg.closed, 10)
			m.breakerState = msg.state
			m.exitDepth, m.shieldDepth, m.spearDepth = msg.exit, msg.shield, msg.spear
		}
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Dashboard):
			m.Screen = ScreenDashboard
		case key.Matches(msg, keys.Trades):
			m.Screen = ScreenTrades
		case key.Matches(msg, keys.Theme):
			CycleTheme()
		}
	}
	return m, nil
}

func truncateTrades(trades []*models.TradeRecord, n int) []*models.TradeRecord {
	if len(trades) <= n {
		return trades
	}
	return trades[:n]
}

func (m Model) View() string {
	var body string
	switch m.Screen {
	case ScreenTrades:
		body = m.renderTrades()
	default:
		body = m.renderDashboard()
	}

	footer := StyleFooter.Render(
		RenderHotKey("1", "dashboard") + "  " +
			RenderHotKey("2", "trades") + "  " +
			RenderHotKey("t", "theme") + "  " +
			RenderHotKey("q", "quit"),
	)

	return StylePage.Render(lipgloss.JoinVertical(lipgloss.Left, m.renderHeader(), body, footer))
}

func (m Model) renderHeader() string {
	return StyleHeader.Render("chimera-operator — signal-to-execution pipeline")
}

func (m Model) renderDashboard() string {
	var b strings.Builder

	b.WriteString(m.renderBreaker())
	b.WriteString("\n\n")
	b.WriteString(m.renderQueue())
	b.WriteString("\n\n")
	b.WriteString(m.renderOpenTrades())

	if m.lastErr != nil {
		b.WriteString("\n\n")
		b.WriteString(StyleLoss.Render("refresh error: " + m.lastErr.Error()))
	}

	return b.String()
}

func (m Model) renderBreaker() string {
	style := StyleProfit
	switch m.breakerState {
	case breaker.StateOpen:
		style = StyleLoss
	case breaker.StateHalfOpen:
		style = lipgloss.NewStyle().Foreground(ColorWarning)
	}
	return StyleTableHeader.Render("circuit breaker: ") + style.Render(string(m.breakerState))
}

func (m Model) renderQueue() string {
	return fmt.Sprintf("%s exit=%d shield=%d spear=%d",
		StyleTableHeader.Render("queue depth:"), m.exitDepth, m.shieldDepth, m.spearDepth)
}

func (m Model) renderOpenTrades() string {
	var b strings.Builder
	b.WriteString(StyleTableHeader.Render(fmt.Sprintf("open trades (%d):", len(m.openTrades))))
	b.WriteString("\n")
	for i, t := range m.openTrades {
		if i >= 12 {
			b.WriteString(fmt.Sprintf("  ... and %d more\n", len(m.openTrades)-12))
			break
		}
		b.WriteString(formatTradeRow(t))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderTrades() string {
	var b strings.Builder
	b.WriteString(StyleTableHeader.Render("recent closed/failed trades:"))
	b.WriteString("\n")
	for _, t := range m.recentClosed {
		b.WriteString(formatTradeRow(t))
		b.WriteString("\n")
	}
	return b.String()
}

func formatTradeRow(t *models.TradeRecord) string {
	statusStyle := StyleTableHeader
	switch t.Status {
	case models.StatusClosed:
		statusStyle = StyleProfit
	case models.StatusFailed:
		statusStyle = StyleLoss
	}
	symbol := t.DisplaySymbol
	if symbol == "" {
		symbol = t.TokenMint
	}
	return fmt.Sprintf("  %-8s %-6s %-10s %s",
		statusStyle.Render(string(t.Status)), string(t.Action), symbol, t.TradeUUID[:8])
}
