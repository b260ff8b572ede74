package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeTimeout is the deadline for a single write (ping or close frame).
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong response before treating the
	// connection as dead.
	pongWait = 60 * time.Second

	// pingPeriod controls how often ping frames are sent.
	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize caps one inbound frame.
	maxMessageSize = 64 * 1024

	defaultHandshakeTimeout  = 10 * time.Second
	defaultReconnectAttempts = 5
	defaultBackoffInitial    = 1 * time.Second
	defaultBackoffMax        = 30 * time.Second
)

// Options tunes the WebSocket client. Zero values select defaults.
type Options struct {
	// ReconnectAttempts is the number of consecutive redials after a dropped
	// connection before giving up. Zero selects the default; a negative
	// value disables automatic reconnect entirely.
	ReconnectAttempts int

	HandshakeTimeout time.Duration
	BackoffInitial   time.Duration
	BackoffMax       time.Duration
}

func (o Options) withDefaults() Options {
	if o.ReconnectAttempts == 0 {
		o.ReconnectAttempts = defaultReconnectAttempts
	}
	if o.HandshakeTimeout == 0 {
		o.HandshakeTimeout = defaultHandshakeTimeout
	}
	if o.BackoffInitial == 0 {
		o.BackoffInitial = defaultBackoffInitial
	}
	if o.BackoffMax == 0 {
		o.BackoffMax = defaultBackoffMax
	}
	return o
}

// WSClient is the gorilla/websocket implementation of Client.
type WSClient struct {
	url  string
	opts Options

	mu             sync.Mutex
	conn           *websocket.Conn
	handlers       map[string]Handler
	onClose        func(error)
	onReconnecting func(int)
	onReconnected  func()
	cancel         context.CancelFunc
	started        bool
	stopped        bool
}

// NewWS builds a WSClient for the hub at endpoint, attaching identity as the
// user_id query parameter. The endpoint scheme must be ws, wss, http, or
// https; http schemes are rewritten to their WebSocket equivalents.
func NewWS(endpoint, identity string, opts Options) (*WSClient, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("transport: parse endpoint %q: %w", endpoint, err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("transport: endpoint %q: unsupported scheme %q", endpoint, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("transport: endpoint %q has no host", endpoint)
	}

	q := u.Query()
	q.Set("user_id", identity)
	u.RawQuery = q.Encode()

	return &WSClient{
		url:      u.String(),
		opts:     opts.withDefaults(),
		handlers: make(map[string]Handler),
	}, nil
}

// On registers the handler for a named push event.
func (c *WSClient) On(event string, h Handler) {
	c.mu.Lock()
	c.handlers[event] = h
	c.mu.Unlock()
}

// OnClose sets the unrecoverable-close hook.
func (c *WSClient) OnClose(fn func(error)) {
	c.mu.Lock()
	c.onClose = fn
	c.mu.Unlock()
}

// OnReconnecting sets the reconnect-attempt-started hook.
func (c *WSClient) OnReconnecting(fn func(int)) {
	c.mu.Lock()
	c.onReconnecting = fn
	c.mu.Unlock()
}

// OnReconnected sets the reconnect-succeeded hook.
func (c *WSClient) OnReconnected(fn func()) {
	c.mu.Lock()
	c.onReconnected = fn
	c.mu.Unlock()
}

// Start dials the hub. On success the receive loop runs in the background
// until Stop or an unrecoverable close. Start can be called at most once.
func (c *WSClient) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started || c.stopped {
		c.mu.Unlock()
		return fmt.Errorf("transport: client already %s", c.stateWord())
	}
	c.started = true
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	conn, err := c.dial(runCtx)
	if err != nil {
		cancel()
		c.mu.Lock()
		c.started = false
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	if c.stopped {
		// Stop raced the handshake — do not leave an abandoned connection.
		c.mu.Unlock()
		conn.Close()
		return fmt.Errorf("transport: stopped during handshake")
	}
	c.conn = conn
	c.mu.Unlock()

	go c.run(runCtx, conn)
	return nil
}

// Stop closes the connection and cancels any in-flight dial or reconnect
// wait. Safe to call at any point, including before the handshake resolves.
func (c *WSClient) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	conn := c.conn
	c.conn = nil
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn == nil {
		return nil
	}

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	writeErr := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()
	if writeErr != nil {
		return fmt.Errorf("transport: write close frame: %w", writeErr)
	}
	return nil
}

// --- internal ---------------------------------------------------------------

func (c *WSClient) stateWord() string {
	if c.stopped {
		return "stopped"
	}
	return "started"
}

func (c *WSClient) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := &websocket.Dialer{HandshakeTimeout: c.opts.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: dial hub: %w", err)
	}
	return conn, nil
}

// run owns the connection after a successful handshake: it reads until the
// connection fails, then redials with backoff. It exits on Stop, context
// cancellation, or an exhausted reconnect budget.
func (c *WSClient) run(ctx context.Context, conn *websocket.Conn) {
	for {
		err := c.readLoop(ctx, conn)
		if ctx.Err() != nil || c.isStopped() {
			return
		}

		conn, err = c.redial(ctx, err)
		if err != nil {
			if ctx.Err() == nil && !c.isStopped() {
				c.fireClose(err)
			}
			return
		}
	}
}

// readLoop reads frames from conn and dispatches event envelopes until the
// connection fails. A per-connection ping goroutine keeps it alive.
func (c *WSClient) readLoop(ctx context.Context, conn *websocket.Conn) error {
	defer conn.Close()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	go pingLoop(ctx, conn, done)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.dispatch(msg)
	}
}

// pingLoop sends periodic ping frames and force-closes the connection when
// ctx is cancelled so the read loop unblocks.
func pingLoop(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	t := time.NewTicker(pingPeriod)
	defer t.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			conn.Close()
			return
		case <-t.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				// The read loop observes the broken connection and returns.
				conn.Close()
				return
			}
		}
	}
}

// redial re-establishes a dropped connection with truncated exponential
// backoff, firing the reconnecting/reconnected hooks around each attempt.
func (c *WSClient) redial(ctx context.Context, cause error) (*websocket.Conn, error) {
	if c.opts.ReconnectAttempts < 0 {
		return nil, cause
	}

	bo := newBackoff(c.opts.BackoffInitial, c.opts.BackoffMax)
	for attempt := 1; attempt <= c.opts.ReconnectAttempts; attempt++ {
		c.fireReconnecting(attempt)

		wait := bo.next()
		slog.Info("transport: connection lost, will redial",
			"attempt", attempt, "retry_in", wait, "err", cause)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}

		conn, err := c.dial(ctx)
		if err != nil {
			slog.Warn("transport: redial failed", "attempt", attempt, "err", err)
			cause = err
			continue
		}

		c.mu.Lock()
		if c.stopped {
			c.mu.Unlock()
			conn.Close()
			return nil, fmt.Errorf("transport: stopped during redial")
		}
		c.conn = conn
		c.mu.Unlock()

		slog.Info("transport: reconnected", "attempt", attempt)
		c.fireReconnected()
		return conn, nil
	}

	return nil, fmt.Errorf("transport: giving up after %d reconnect attempts: %w",
		c.opts.ReconnectAttempts, cause)
}

// dispatch decodes one frame and hands the payload to the registered handler.
// Undecodable frames and unregistered event names are ignored.
func (c *WSClient) dispatch(msg []byte) {
	var env Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		slog.Debug("transport: discarding undecodable frame", "err", err)
		return
	}

	c.mu.Lock()
	h := c.handlers[env.Event]
	c.mu.Unlock()
	if h != nil {
		h(env.Data)
	}
}

func (c *WSClient) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

func (c *WSClient) fireClose(err error) {
	c.mu.Lock()
	fn := c.onClose
	c.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func (c *WSClient) fireReconnecting(attempt int) {
	c.mu.Lock()
	fn := c.onReconnecting
	c.mu.Unlock()
	if fn != nil {
		fn(attempt)
	}
}

func (c *WSClient) fireReconnected() {
	c.mu.Lock()
	fn := c.onReconnected
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}
