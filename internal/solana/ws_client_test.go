package solana

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wsServer serves handle on every upgraded connection and returns the ws:// URL.
func wsServer(t *testing.T, handle func(c *websocket.Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		handle(c)
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

// drain keeps a server connection open until the client goes away.
func drain(c *websocket.Conn) {
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
	}
}

// confirm reads one subscribe call and answers it with subID.
func confirm(c *websocket.Conn, subID int64) (request, bool) {
	var req request
	if err := c.ReadJSON(&req); err != nil {
		return req, false
	}
	return req, c.WriteJSON(confirmation(req.ID, subID)) == nil
}

func confirmation(id uint64, subID int64) envelope {
	return envelope{JSONRPC: "2.0", ID: id, Result: json.RawMessage(strconv.FormatInt(subID, 10))}
}

func push(subID int64, payload string) envelope {
	return envelope{
		JSONRPC: "2.0",
		Method:  "candidateNotification",
		Params:  &pushParams{Subscription: subID, Result: json.RawMessage(payload)},
	}
}

func newTestClient(t *testing.T, url string, cfg *WSClientConfig) *WSClient {
	t.Helper()
	client, err := NewWSClient(context.Background(), url, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestWSClient_Subscribe(t *testing.T) {
	var method atomic.Value
	url := wsServer(t, func(c *websocket.Conn) {
		req, ok := confirm(c, 12345)
		if !ok {
			return
		}
		method.Store(req.Method)
		time.Sleep(20 * time.Millisecond)
		c.WriteJSON(push(12345, `{"mint":"MintA"}`))
		drain(c)
	})

	client := newTestClient(t, url, nil)
	assert.False(t, client.closed.Load())

	ch, err := client.Subscribe(context.Background(), "candidateSubscribe",
		[]interface{}{map[string]string{"commitment": "confirmed"}})
	require.NoError(t, err)

	select {
	case n := <-ch:
		assert.Equal(t, "candidateNotification", n.Method)
		assert.JSONEq(t, `{"mint":"MintA"}`, string(n.Result))
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for notification")
	}
	assert.Equal(t, "candidateSubscribe", method.Load())
}

func TestWSClient_ResubscribesAfterReconnect(t *testing.T) {
	var conns atomic.Int32
	url := wsServer(t, func(c *websocket.Conn) {
		if conns.Add(1) == 1 {
			// Confirm, then drop the connection without pushing anything.
			confirm(c, 1)
			time.Sleep(20 * time.Millisecond)
			return
		}
		if _, ok := confirm(c, 2); !ok {
			return
		}
		time.Sleep(20 * time.Millisecond)
		c.WriteJSON(push(2, `{"mint":"MintB"}`))
		drain(c)
	})

	cfg := DefaultWSConfig()
	cfg.ReconnectDelay = 20 * time.Millisecond
	cfg.MaxReconnectDelay = 100 * time.Millisecond
	client := newTestClient(t, url, &cfg)

	ch, err := client.Subscribe(context.Background(), "candidateSubscribe", nil)
	require.NoError(t, err)

	select {
	case n := <-ch:
		assert.JSONEq(t, `{"mint":"MintB"}`, string(n.Result))
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for notification after reconnect")
	}
	assert.GreaterOrEqual(t, conns.Load(), int32(2))
}

func TestWSClient_SubscribeRejected(t *testing.T) {
	url := wsServer(t, func(c *websocket.Conn) {
		var req request
		if err := c.ReadJSON(&req); err != nil {
			return
		}
		c.WriteJSON(envelope{JSONRPC: "2.0", ID: req.ID, Error: &RPCError{Code: -32601, Message: "Method not found"}})
		drain(c)
	})

	client := newTestClient(t, url, nil)

	start := time.Now()
	_, err := client.Subscribe(context.Background(), "unknownSubscribe", nil)

	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32601, rpcErr.Code)
	assert.Less(t, time.Since(start), client.config.SubscribeTimeout)
}

func TestWSClient_SubscribeTimeout(t *testing.T) {
	url := wsServer(t, drain)

	client := newTestClient(t, url, &WSClientConfig{SubscribeTimeout: 50 * time.Millisecond})

	_, err := client.Subscribe(context.Background(), "candidateSubscribe", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no confirmation")
}

func TestWSClient_IgnoresUnknownSubscription(t *testing.T) {
	url := wsServer(t, func(c *websocket.Conn) {
		if _, ok := confirm(c, 3); !ok {
			return
		}
		time.Sleep(20 * time.Millisecond)
		c.WriteJSON(push(99, `{"mint":"Stray"}`))
		c.WriteJSON(push(3, `{"mint":"MintC"}`))
		drain(c)
	})

	client := newTestClient(t, url, nil)

	ch, err := client.Subscribe(context.Background(), "candidateSubscribe", nil)
	require.NoError(t, err)

	select {
	case n := <-ch:
		assert.JSONEq(t, `{"mint":"MintC"}`, string(n.Result))
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for notification")
	}
}

func TestWSClient_Close(t *testing.T) {
	url := wsServer(t, func(c *websocket.Conn) {
		confirm(c, 7)
		drain(c)
	})

	ctx := context.Background()
	client, err := NewWSClient(ctx, url, nil)
	require.NoError(t, err)

	ch, err := client.Subscribe(ctx, "candidateSubscribe", nil)
	require.NoError(t, err)

	require.NoError(t, client.Close())
	assert.True(t, client.closed.Load())
	assert.NoError(t, client.Close(), "second close is a no-op")

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription channel not closed")
	}

	_, err = client.Subscribe(ctx, "candidateSubscribe", nil)
	assert.ErrorIs(t, err, ErrClientClosed)
}

func TestWSClient_ConfigDefaults(t *testing.T) {
	url := wsServer(t, drain)

	client := newTestClient(t, url, &WSClientConfig{
		ReconnectDelay: 100 * time.Millisecond,
		PingInterval:   5 * time.Second,
	})

	assert.Equal(t, 100*time.Millisecond, client.config.ReconnectDelay)
	assert.Equal(t, 5*time.Second, client.config.PingInterval)
	assert.Equal(t, 30*time.Second, client.config.SubscribeTimeout)
	assert.Equal(t, 60*time.Second, client.config.ReadTimeout)
	assert.Equal(t, 10000, client.config.BufferSize)
}

func TestWSClient_DialFailure(t *testing.T) {
	_, err := NewWSClient(context.Background(), "ws://127.0.0.1:1", nil)
	assert.Error(t, err)
}
