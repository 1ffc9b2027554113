package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// echoSubscribeServer answers every subscribe request with subscription
// id 1 and, once subscribed, immediately pushes one notification.
func echoSubscribeServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}

			var req struct {
				ID     uint64 `json:"id"`
				Method string `json:"method"`
			}
			require.NoError(t, json.Unmarshal(msg, &req))

			if strings.HasSuffix(req.Method, "Unsubscribe") {
				resp, _ := json.Marshal(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": true})
				conn.WriteMessage(websocket.TextMessage, resp)
				continue
			}

			resp, _ := json.Marshal(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": 1})
			conn.WriteMessage(websocket.TextMessage, resp)

			notification, _ := json.Marshal(map[string]interface{}{
				"jsonrpc": "2.0",
				"method":  "accountNotification",
				"params": map[string]interface{}{
					"subscription": 1,
					"result": map[string]interface{}{
						"context": map[string]interface{}{"slot": 100},
						"value":   map[string]interface{}{"lamports": 42},
					},
				},
			})
			conn.WriteMessage(websocket.TextMessage, notification)
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestAccountSubscribeReceivesNotification(t *testing.T) {
	srv := echoSubscribeServer(t)
	defer srv.Close()

	client := NewClient(wsURL(srv), 100*time.Millisecond, time.Minute)
	require.NoError(t, client.Connect())
	defer client.Close()

	received := make(chan json.RawMessage, 1)
	subID, err := client.AccountSubscribe("SomeAddr", func(data json.RawMessage) {
		received <- data
	})
	require.NoError(t, err)
	require.Equal(t, uint64(1), subID)

	select {
	case data := <-received:
		var parsed struct {
			Value struct {
				Lamports uint64 `json:"lamports"`
			} `json:"value"`
		}
		require.NoError(t, json.Unmarshal(data, &parsed))
		require.Equal(t, uint64(42), parsed.Value.Lamports)
	case <-time.After(2 * time.Second):
		t.Fatal("did not receive notification")
	}
}

func TestUnsubscribeStopsRouting(t *testing.T) {
	srv := echoSubscribeServer(t)
	defer srv.Close()

	client := NewClient(wsURL(srv), 100*time.Millisecond, time.Minute)
	require.NoError(t, client.Connect())
	defer client.Close()

	subID, err := client.AccountSubscribe("SomeAddr", func(data json.RawMessage) {})
	require.NoError(t, err)

	require.NoError(t, client.Unsubscribe("accountUnsubscribe", subID))

	client.subsMu.RLock()
	_, stillRegistered := client.subs[subID]
	client.subsMu.RUnlock()
	require.False(t, stillRegistered)
}
