// Package websocket implements the Solana JSON-RPC websocket
// subscription protocol used for real-time price and wallet updates:
// accountSubscribe / signatureSubscribe, with automatic reconnect.
package websocket

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// NotificationHandler is invoked with the "params.result.value" payload
// of a subscription notification.
type NotificationHandler func(data json.RawMessage)

type pendingRequest struct {
	resultCh chan json.RawMessage
	errCh    chan error
}

// Client manages one Solana websocket connection, JSON-RPC request/
// response correlation by id, and subscription -> handler routing.
type Client struct {
	url              string
	reconnectDelay   time.Duration
	pingInterval     time.Duration

	mu       sync.Mutex
	conn     *websocket.Conn
	closed   bool
	nextID   uint64

	pendingMu sync.Mutex
	pending   map[uint64]*pendingRequest

	subsMu sync.RWMutex
	subs   map[uint64]NotificationHandler // subscription id -> handler
}

func NewClient(url string, reconnectDelay, pingInterval time.Duration) *Client {
	return &Client{
		url:            url,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		pending:        make(map[uint64]*pendingRequest),
		subs:           make(map[uint64]NotificationHandler),
	}
}

// Connect dials the websocket endpoint once, returning the dial error
// if that fails; otherwise it starts the read and ping loops and
// returns. The read loop then reconnects in the background, waiting
// reconnectDelay between attempts, until Close is called.
func (c *Client) Connect() error {
	if err := c.dial(); err != nil {
		return err
	}
	go c.readLoop()
	go c.pingLoop()
	return nil
}

func (c *Client) dial() error {
	conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

func (c *Client) readLoop() {
	for {
		c.mu.Lock()
		conn := c.conn
		closed := c.closed
		c.mu.Unlock()

		if closed {
			return
		}
		if conn == nil {
			c.reconnect()
			continue
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			log.Warn().Err(err).Msg("websocket: read failed, reconnecting")
			c.reconnect()
			continue
		}
		c.handleMessage(msg)
	}
}

func (c *Client) reconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.mu.Unlock()

	time.Sleep(c.reconnectDelay)

	if err := c.dial(); err != nil {
		log.Error().Err(err).Msg("websocket: reconnect failed")
	}
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for range ticker.C {
		c.mu.Lock()
		conn := c.conn
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}
		if conn == nil {
			continue
		}
		if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
			log.Warn().Err(err).Msg("websocket: ping failed")
		}
	}
}

type rpcEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *Client) handleMessage(msg []byte) {
	var env rpcEnvelope
	if err := json.Unmarshal(msg, &env); err != nil {
		log.Warn().Err(err).Msg("websocket: malformed message")
		return
	}

	// Response to a request we issued.
	if env.ID != 0 && env.Method == "" {
		c.pendingMu.Lock()
		req, ok := c.pending[env.ID]
		if ok {
			delete(c.pending, env.ID)
		}
		c.pendingMu.Unlock()

		if !ok {
			return
		}
		if env.Error != nil {
			req.errCh <- fmt.Errorf("rpc error %d: %s", env.Error.Code, env.Error.Message)
			return
		}
		req.resultCh <- env.Result
		return
	}

	// Subscription notification: params = {subscription, result: {context, value}}.
	if env.Method != "" {
		var params struct {
			Subscription uint64 `json:"subscription"`
			Result       struct {
				Context json.RawMessage `json:"context"`
				Value   json.RawMessage `json:"value"`
			} `json:"result"`
		}
		if err := json.Unmarshal(env.Params, &params); err != nil {
			return
		}

		c.subsMu.RLock()
		handler, ok := c.subs[params.Subscription]
		c.subsMu.RUnlock()
		if ok {
			// Re-pack context+value the way callers already unmarshal it.
			full, _ := json.Marshal(map[string]json.RawMessage{
				"context": params.Result.Context,
				"value":   params.Result.Value,
			})
			handler(full)
		}
	}
}

func (c *Client) call(method string, params interface{}) (json.RawMessage, error) {
	id := atomic.AddUint64(&c.nextID, 1)
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}

	req := rpcEnvelope{JSONRPC: "2.0", ID: id, Method: method, Params: paramsJSON}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	pending := &pendingRequest{resultCh: make(chan json.RawMessage, 1), errCh: make(chan error, 1)}
	c.pendingMu.Lock()
	c.pending[id] = pending
	c.pendingMu.Unlock()

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil, fmt.Errorf("websocket: not connected")
	}
	if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}

	select {
	case result := <-pending.resultCh:
		return result, nil
	case err := <-pending.errCh:
		return nil, err
	case <-time.After(10 * time.Second):
		return nil, fmt.Errorf("websocket: %s timed out", method)
	}
}

// AccountSubscribe subscribes to account change notifications for
// addr, routing notifications to handler.
func (c *Client) AccountSubscribe(addr string, handler NotificationHandler) (uint64, error) {
	return c.subscribe("accountSubscribe", []interface{}{addr, map[string]string{"encoding": "jsonParsed"}}, handler)
}

// SignatureSubscribe subscribes to confirmation notifications for a
// transaction signature.
func (c *Client) SignatureSubscribe(signature string, handler NotificationHandler) (uint64, error) {
	return c.subscribe("signatureSubscribe", []interface{}{signature, map[string]string{"commitment": "confirmed"}}, handler)
}

func (c *Client) subscribe(method string, params interface{}, handler NotificationHandler) (uint64, error) {
	result, err := c.call(method, params)
	if err != nil {
		return 0, err
	}

	var subID uint64
	if err := json.Unmarshal(result, &subID); err != nil {
		return 0, fmt.Errorf("parse subscription id: %w", err)
	}

	c.subsMu.Lock()
	c.subs[subID] = handler
	c.subsMu.Unlock()

	return subID, nil
}

// Unsubscribe cancels a subscription, e.g. "accountUnsubscribe" with
// the subscription id returned by AccountSubscribe.
func (c *Client) Unsubscribe(method string, subID uint64) error {
	c.subsMu.Lock()
	delete(c.subs, subID)
	c.subsMu.Unlock()

	_, err := c.call(method, []interface{}{subID})
	return err
}

// Close terminates the connection and stops reconnect attempts.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}
