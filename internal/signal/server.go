// Package signal is the HTTP ingress for the pipeline: it accepts
// structured trade signals over HTTP, assigns a ledger row, and pushes
// them onto the priority queue for the Engine Loop to pick up.
package signal

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/chimera-labs/chimera-operator/internal/ledger"
	"github.com/chimera-labs/chimera-operator/internal/models"
	"github.com/chimera-labs/chimera-operator/internal/queue"
)

// IngressPayload is the wire shape accepted at POST /signal. Strategy
// and action are validated against models' enums before a Signal is
// built; trade_uuid is optional and is assigned by models.NewSignal if
// omitted.
type IngressPayload struct {
	TradeUUID           string  `json:"trade_uuid"`
	Strategy            string  `json:"strategy"`
	Action              string  `json:"action"`
	TokenMint           string  `json:"token_mint"`
	DisplaySymbol       string  `json:"display_symbol"`
	SizeNative          string  `json:"size_native"`
	LeaderWallet        string  `json:"leader_wallet"`
	LeaderObservedPrice *string `json:"leader_observed_price"`
}

// Handler validates an IngressPayload, records it in the ledger as
// QUEUED, and pushes the resulting Signal onto the priority queue.
type Handler struct {
	queue  *queue.Queue
	ledger *ledger.Ledger
}

func NewHandler(q *queue.Queue, l *ledger.Ledger) *Handler {
	return &Handler{queue: q, ledger: l}
}

func (h *Handler) accept(payload IngressPayload) (models.Signal, error) {
	strategy := models.Strategy(payload.Strategy)
	if !strategy.Valid() {
		return models.Signal{}, fmt.Errorf("invalid strategy: %q", payload.Strategy)
	}

	var action models.Action
	switch payload.Action {
	case string(models.ActionBuy):
		action = models.ActionBuy
	case string(models.ActionSell):
		action = models.ActionSell
	default:
		return models.Signal{}, fmt.Errorf("invalid action: %q", payload.Action)
	}

	if payload.TokenMint == "" {
		return models.Signal{}, fmt.Errorf("token_mint is required")
	}

	sizeNative, err := decimal.NewFromString(payload.SizeNative)
	if err != nil {
		return models.Signal{}, fmt.Errorf("invalid size_native: %w", err)
	}

	var leaderPrice *decimal.Decimal
	if payload.LeaderObservedPrice != nil {
		p, err := decimal.NewFromString(*payload.LeaderObservedPrice)
		if err != nil {
			return models.Signal{}, fmt.Errorf("invalid leader_observed_price: %w", err)
		}
		leaderPrice = &p
	}

	sig := models.NewSignal(models.Signal{
		TradeUUID:           payload.TradeUUID,
		Strategy:            strategy,
		Action:              action,
		TokenMint:           payload.TokenMint,
		DisplaySymbol:       payload.DisplaySymbol,
		SizeNative:          sizeNative,
		LeaderWallet:        payload.LeaderWallet,
		LeaderObservedPrice: leaderPrice,
		Source:              models.SourceWebhook,
	})

	if err := h.ledger.CreateQueued(sig); err != nil {
		return models.Signal{}, fmt.Errorf("create ledger row: %w", err)
	}
	if err := h.queue.Push(sig); err != nil {
		return models.Signal{}, fmt.Errorf("enqueue: %w", err)
	}
	return sig, nil
}

// Server runs the HTTP ingress endpoint.
type Server struct {
	app     *fiber.App
	handler *Handler
	host    string
	port    int
}

// NewServer creates a new signal ingress server, rate limited to guard
// against a misbehaving or compromised upstream flooding the queue.
func NewServer(host string, port int, handler *Handler) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           5 * time.Second,
		WriteTimeout:          5 * time.Second,
	})

	app.Use(limiter.New(limiter.Config{
		Max:        20,
		Expiration: 1 * time.Second,
	}))

	s := &Server{
		app:     app,
		handler: handler,
		host:    host,
		port:    port,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"time":   time.Now().Unix(),
		})
	})

	s.app.Post("/signal", s.handleSignal)
}

func (s *Server) handleSignal(c *fiber.Ctx) error {
	var payload IngressPayload
	if err := c.BodyParser(&payload); err != nil {
		log.Error().Err(err).Msg("failed to parse signal payload")
		return c.Status(400).JSON(fiber.Map{"error": "invalid payload"})
	}

	sig, err := s.handler.accept(payload)
	if err != nil {
		log.Warn().Err(err).Msg("signal rejected")
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}

	log.Info().
		Str("tradeUUID", sig.TradeUUID).
		Str("strategy", string(sig.Strategy)).
		Str("action", string(sig.Action)).
		Str("mint", sig.TokenMint).
		Msg("signal accepted")

	return c.JSON(fiber.Map{
		"status":     "accepted",
		"trade_uuid": sig.TradeUUID,
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	log.Info().Str("addr", addr).Msg("starting signal ingress server")
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
