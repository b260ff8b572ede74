package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/machinewatch/machinewatch/internal/logstore"
	"github.com/machinewatch/machinewatch/internal/monitor"
)

const (
	// writeTimeout is the deadline for a single write to a page.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong response before treating the
	// page connection as dead.
	pongWait = 60 * time.Second

	// pingPeriod controls how often ping frames are sent to pages.
	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// sendBufSize is the per-page outgoing frame buffer depth.
	sendBufSize = 64

	// eventBufSize is the depth of the hub's internal broadcast queue.
	eventBufSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The server binds to localhost; pages are same-origin in practice.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// frame is the JSON envelope pushed to pages.
type frame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Hub fans log-store events and connection-state changes out to every
// connected page over WebSocket.
//
// Page membership is owned by the Run goroutine: register/unregister
// requests and broadcasts are all processed there, so a page's send channel
// is only ever closed by the same goroutine that writes to it.
type Hub struct {
	ctrl  Controller
	store *logstore.Store

	events     chan []byte
	register   chan *pageClient
	unregister chan *pageClient
	done       chan struct{}

	mu      sync.RWMutex
	clients map[*pageClient]struct{}
}

// pageClient represents one connected page.
type pageClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a Hub reading initial snapshots from ctrl and st.
func NewHub(ctrl Controller, st *logstore.Store) *Hub {
	return &Hub{
		ctrl:       ctrl,
		store:      st,
		events:     make(chan []byte, eventBufSize),
		register:   make(chan *pageClient),
		unregister: make(chan *pageClient),
		done:       make(chan struct{}),
		clients:    make(map[*pageClient]struct{}),
	}
}

// Run subscribes to the log store and forwards every append/clear event and
// every queued broadcast to all connected pages. Blocks until ctx is
// cancelled, then closes all page connections.
func (h *Hub) Run(ctx context.Context) {
	sub := h.store.Subscribe(eventBufSize)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			close(h.done)
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()

		case c := <-h.unregister:
			h.remove(c)

		case ev := <-sub.C:
			switch ev.Kind {
			case logstore.EventAppend:
				h.enqueue("record", toRecordView(ev.Record))
			case logstore.EventClear:
				h.enqueue("cleared", nil)
			}

		case data := <-h.events:
			h.broadcast(data)
		}
	}
}

// BroadcastState pushes a connection-state change to all pages.
// Safe to call from the manager's state observer.
func (h *Hub) BroadcastState(s monitor.State) {
	h.enqueue("state", StateResponse{State: s})
}

// BroadcastError pushes a user-visible error message to all pages.
func (h *Hub) BroadcastError(msg string) {
	h.enqueue("error", ErrorPayload{Message: msg})
}

// ServeHTTP upgrades the connection and serves one page: an immediate
// snapshot frame, then live pushes until the page goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	c := &pageClient{
		conn: conn,
		send: make(chan []byte, sendBufSize),
	}

	// Queue the snapshot before the page joins the broadcast set so it is
	// always the first frame. The buffer is empty here; this never blocks.
	if data, err := marshalFrame("snapshot", h.snapshot()); err == nil {
		c.send <- data
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
	}()

	go c.writePump()
	c.readPump() // blocks until the page disconnects
}

// Count returns the number of currently connected pages.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// --- internal ---------------------------------------------------------------

func (h *Hub) snapshot() SnapshotPayload {
	recs := h.store.Records()
	views := make([]RecordView, 0, len(recs))
	for _, rec := range recs {
		views = append(views, toRecordView(rec))
	}
	return SnapshotPayload{State: h.ctrl.State(), Records: views}
}

// enqueue marshals one frame onto the broadcast queue without blocking the
// caller; when the queue is full the frame is dropped (pages resync from the
// snapshot on reconnect).
func (h *Hub) enqueue(event string, data any) {
	raw, err := marshalFrame(event, data)
	if err != nil {
		slog.Error("web: marshal push frame", "event", event, "err", err)
		return
	}
	select {
	case h.events <- raw:
	default:
		slog.Warn("web: broadcast queue full, dropping frame", "event", event)
	}
}

func marshalFrame(event string, data any) ([]byte, error) {
	return json.Marshal(frame{Event: event, Data: data})
}

// remove drops a page and closes its send channel.
// Must only be called from the Run goroutine.
func (h *Hub) remove(c *pageClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// broadcast sends data to every page.
// Must only be called from the Run goroutine.
func (h *Hub) broadcast(data []byte) {
	h.mu.RLock()
	targets := make([]*pageClient, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		select {
		case c.send <- data:
		default:
			// Page's outgoing buffer is full — disconnect it.
			h.remove(c)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

// writePump drains the page's send channel and forwards frames to the
// WebSocket connection, interleaved with periodic pings. Runs in its own
// goroutine per page.
func (c *pageClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				// Channel was closed (hub shutdown or page removed).
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump consumes frames from the page to process control messages and
// detect disconnects. Blocks until the connection closes.
func (c *pageClient) readPump() {
	defer c.conn.Close()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}
