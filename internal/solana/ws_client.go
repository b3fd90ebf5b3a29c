package solana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	// ErrClientClosed is returned by calls made on or interrupted by Close.
	ErrClientClosed = errors.New("websocket client closed")

	errConnectionLost = errors.New("websocket connection lost")
)

// WSClientConfig configures WSClient. Zero fields take DefaultWSConfig values.
type WSClientConfig struct {
	// ReconnectDelay is the first wait before redialing; it doubles per failure.
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	PingInterval      time.Duration
	// ReadTimeout is how long the connection may stay silent, pongs included.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// SubscribeTimeout bounds the wait for a subscription confirmation.
	SubscribeTimeout time.Duration
	// BufferSize is the per-subscription channel capacity.
	BufferSize int
	Logger     *zap.Logger
}

// DefaultWSConfig returns the default WebSocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		SubscribeTimeout:  30 * time.Second,
		BufferSize:        10000,
	}
}

func (c WSClientConfig) withDefaults() WSClientConfig {
	d := DefaultWSConfig()
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = d.ReconnectDelay
	}
	if c.MaxReconnectDelay <= 0 {
		c.MaxReconnectDelay = d.MaxReconnectDelay
	}
	if c.PingInterval <= 0 {
		c.PingInterval = d.PingInterval
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.SubscribeTimeout <= 0 {
		c.SubscribeTimeout = d.SubscribeTimeout
	}
	if c.BufferSize <= 0 {
		c.BufferSize = d.BufferSize
	}
	return c
}

// subscription is kept so it can be replayed on a fresh connection.
type subscription struct {
	method string
	params []interface{}
	ch     chan Notification
}

// WSClient is a Subscriber over a single gorilla/websocket connection.
//
// One goroutine owns reading: it dispatches pushes to subscribers, hands call
// replies to their waiters and, when the connection drops, redials with
// backoff and replays every live subscription. Notifications are never
// dropped; a full subscriber buffer blocks the reader.
type WSClient struct {
	endpoint string
	config   WSClientConfig
	dialer   websocket.Dialer
	logger   *zap.Logger

	connMu sync.Mutex
	conn   *websocket.Conn

	closed atomic.Bool
	ids    atomic.Uint64

	mu      sync.Mutex
	subs    map[int64]*subscription // by server subscription ID
	pending map[uint64]chan envelope

	done chan struct{}
	wg   sync.WaitGroup
}

// NewWSClient dials endpoint and starts the reader and keepalive goroutines.
func NewWSClient(ctx context.Context, endpoint string, config *WSClientConfig) (*WSClient, error) {
	var cfg WSClientConfig
	if config != nil {
		cfg = *config
	}
	cfg = cfg.withDefaults()

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &WSClient{
		endpoint: endpoint,
		config:   cfg,
		dialer:   websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger:   logger.Named("ws").With(zap.String("endpoint", endpoint)),
		subs:     make(map[int64]*subscription),
		pending:  make(map[uint64]chan envelope),
		done:     make(chan struct{}),
	}

	if err := c.dial(ctx); err != nil {
		return nil, err
	}

	c.wg.Add(2)
	go c.run()
	go c.keepalive()

	return c, nil
}

// Subscribe sends method(params) and streams the resulting notifications.
// The subscription survives reconnects; its channel closes on Close.
func (c *WSClient) Subscribe(ctx context.Context, method string, params []interface{}) (<-chan Notification, error) {
	subID, err := c.subscribe(ctx, method, params)
	if err != nil {
		return nil, err
	}

	sub := &subscription{
		method: method,
		params: params,
		ch:     make(chan Notification, c.config.BufferSize),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	c.subs[subID] = sub
	return sub.ch, nil
}

// Close sends a close frame, stops all goroutines and closes every
// subscription channel. Safe to call more than once.
func (c *WSClient) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		deadline := time.Now().Add(c.config.WriteTimeout)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.wg.Wait()

	c.mu.Lock()
	for id, sub := range c.subs {
		close(sub.ch)
		delete(c.subs, id)
	}
	c.mu.Unlock()
	return nil
}

// dial opens a connection and swaps it in for the previous one.
func (c *WSClient) dial(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	readTimeout := c.config.ReadTimeout
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.closed.Load() {
		conn.Close()
		return ErrClientClosed
	}
	if c.conn != nil {
		c.conn.Close()
	}
	c.conn = conn
	return nil
}

func (c *WSClient) current() *websocket.Conn {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.conn
}

func (c *WSClient) write(v interface{}) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return errConnectionLost
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	return c.conn.WriteJSON(v)
}

// run reads until Close, reconnecting whenever the connection fails.
func (c *WSClient) run() {
	defer c.wg.Done()

	retry := newBackoff(c.config.ReconnectDelay, c.config.MaxReconnectDelay)
	for {
		err := c.read(c.current(), retry)
		if c.closed.Load() {
			return
		}
		c.failPending()
		c.logger.Warn("websocket read failed, reconnecting", zap.Error(err))

		if !c.redial(retry) {
			return
		}
		c.wg.Add(1)
		go c.resubscribe()
	}
}

// read consumes messages from conn until it fails.
func (c *WSClient) read(conn *websocket.Conn, retry *backoff) error {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		retry.Reset()
		c.dispatch(msg)
	}
}

// redial retries dial with backoff. It returns false once the client closes.
func (c *WSClient) redial(retry *backoff) bool {
	for {
		delay := retry.Next()
		timer := time.NewTimer(delay)
		select {
		case <-c.done:
			timer.Stop()
			return false
		case <-timer.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.config.SubscribeTimeout)
		err := c.dial(ctx)
		cancel()
		if err == nil {
			c.logger.Info("websocket reconnected")
			return true
		}
		if errors.Is(err, ErrClientClosed) {
			return false
		}
		c.logger.Warn("websocket reconnect failed", zap.Duration("delay", delay), zap.Error(err))
	}
}

// dispatch routes one inbound message. Called only from run.
func (c *WSClient) dispatch(msg []byte) {
	var env envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		c.logger.Debug("unreadable websocket message", zap.Error(err))
		return
	}

	if env.isPush() {
		c.deliver(env.Method, env.Params)
		return
	}

	c.mu.Lock()
	reply, ok := c.pending[env.ID]
	delete(c.pending, env.ID)
	c.mu.Unlock()

	switch {
	case ok:
		reply <- env
	case env.Error != nil:
		c.logger.Warn("unsolicited websocket error",
			zap.Uint64("id", env.ID),
			zap.Int("code", env.Error.Code),
			zap.String("message", env.Error.Message))
	}
}

func (c *WSClient) deliver(method string, p *pushParams) {
	c.mu.Lock()
	sub, ok := c.subs[p.Subscription]
	c.mu.Unlock()
	if !ok {
		return
	}

	select {
	case sub.ch <- Notification{Method: method, Result: p.Result}:
	case <-c.done:
	}
}

// failPending wakes every call waiting on the connection that just dropped.
func (c *WSClient) failPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, reply := range c.pending {
		close(reply)
		delete(c.pending, id)
	}
}

// subscribe sends a subscribe call and waits for the server subscription ID.
func (c *WSClient) subscribe(ctx context.Context, method string, params []interface{}) (int64, error) {
	if c.closed.Load() {
		return 0, ErrClientClosed
	}

	id := c.ids.Add(1)
	reply := make(chan envelope, 1)
	c.mu.Lock()
	c.pending[id] = reply
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.write(newRequest(id, method, params)); err != nil {
		return 0, fmt.Errorf("write %s: %w", method, err)
	}

	timer := time.NewTimer(c.config.SubscribeTimeout)
	defer timer.Stop()

	select {
	case env, ok := <-reply:
		if !ok {
			return 0, fmt.Errorf("%s: %w", method, errConnectionLost)
		}
		var subID int64
		if err := env.decode(&subID); err != nil {
			return 0, fmt.Errorf("%s: %w", method, err)
		}
		return subID, nil
	case <-timer.C:
		return 0, fmt.Errorf("%s: no confirmation after %s", method, c.config.SubscribeTimeout)
	case <-c.done:
		return 0, ErrClientClosed
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// resubscribe replays live subscriptions on a fresh connection and remaps
// them to the new server IDs. Failed ones keep their stale ID.
func (c *WSClient) resubscribe() {
	defer c.wg.Done()

	c.mu.Lock()
	stale := make(map[int64]*subscription, len(c.subs))
	for id, sub := range c.subs {
		stale[id] = sub
	}
	c.mu.Unlock()

	fresh := make(map[int64]*subscription, len(stale))
	for oldID, sub := range stale {
		newID, err := c.subscribe(context.Background(), sub.method, sub.params)
		if err != nil {
			c.logger.Warn("resubscribe failed", zap.String("method", sub.method), zap.Error(err))
			delete(stale, oldID)
			continue
		}
		fresh[newID] = sub
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() {
		return
	}
	for oldID := range stale {
		delete(c.subs, oldID)
	}
	for newID, sub := range fresh {
		c.subs[newID] = sub
	}
}

// keepalive pings the server so the pong handler can extend the read deadline.
func (c *WSClient) keepalive() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			conn := c.current()
			if conn == nil {
				continue
			}
			deadline := time.Now().Add(c.config.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.logger.Debug("websocket ping failed", zap.Error(err))
			}
		}
	}
}

var _ Subscriber = (*WSClient)(nil)
