package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/machinewatch/machinewatch/internal/logstore"
	"github.com/machinewatch/machinewatch/internal/metrics"
	"github.com/machinewatch/machinewatch/internal/transport"
)

// EventMachineUpdate is the named push event carrying machine status updates.
const EventMachineUpdate = "ReceiveMachineUpdate"

// State is the connection lifecycle state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// Config describes one connection attempt. Immutable once Connect accepts it.
type Config struct {
	EndpointURL string `json:"endpointUrl"`
	Identity    string `json:"identity"`
}

var (
	// ErrBlankIdentity rejects a connect attempt before any dial happens.
	ErrBlankIdentity = errors.New("identity must not be empty")

	// ErrAlreadyActive rejects a second connect while one connection is
	// being established or live.
	ErrAlreadyActive = errors.New("a connection is already active")
)

// DialFunc builds the transport for one connection attempt. It must not
// perform network I/O; the manager starts the returned client itself.
type DialFunc func(cfg Config) (transport.Client, error)

// Options wires a Manager to its collaborators.
type Options struct {
	Dial    DialFunc
	Store   *logstore.Store
	Metrics *metrics.Set
}

// Manager drives the single hub connection through its state machine.
type Manager struct {
	dial    DialFunc
	store   *logstore.Store
	metrics *metrics.Set

	mu      sync.Mutex
	state   State
	client  transport.Client
	cfg     Config
	closing bool

	onState func(State)
	onError func(error)
}

// New creates a Manager in the Disconnected state.
func New(opts Options) *Manager {
	m := &Manager{
		dial:    opts.Dial,
		store:   opts.Store,
		metrics: opts.Metrics,
		state:   StateDisconnected,
	}
	m.metrics.ConnectionState.Set(metrics.StateDisconnected)
	return m
}

// OnStateChange registers the observer invoked after every state transition.
// Must be called before Connect.
func (m *Manager) OnStateChange(fn func(State)) {
	m.mu.Lock()
	m.onState = fn
	m.mu.Unlock()
}

// OnError registers the observer for user-visible connection errors.
// Must be called before Connect.
func (m *Manager) OnError(fn func(error)) {
	m.mu.Lock()
	m.onError = fn
	m.mu.Unlock()
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ActiveConfig returns the config of the current or most recent connection.
func (m *Manager) ActiveConfig() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// Connect starts one connection attempt. A blank identity fails fast with
// ErrBlankIdentity and changes nothing; a second Connect while Connecting or
// Connected returns ErrAlreadyActive. The handshake resolves asynchronously:
// success lands in Connected, failure lands back in Disconnected and is
// reported through the error observer, with no automatic retry.
func (m *Manager) Connect(cfg Config) error {
	if strings.TrimSpace(cfg.Identity) == "" {
		return ErrBlankIdentity
	}

	m.mu.Lock()
	if m.state != StateDisconnected {
		m.mu.Unlock()
		return ErrAlreadyActive
	}

	cl, err := m.dial(cfg)
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("build transport: %w", err)
	}

	attempt := uuid.NewString()
	m.client = cl
	m.cfg = cfg
	m.closing = false
	m.setStateLocked(StateConnecting)
	m.mu.Unlock()

	cl.On(EventMachineUpdate, m.handleUpdate)
	cl.OnClose(func(err error) { m.handleClose(cl, err) })
	cl.OnReconnecting(func(n int) { m.handleReconnecting(cl, attempt, n) })
	cl.OnReconnected(func() { m.handleReconnected(cl, attempt) })

	slog.Info("monitor: connecting",
		"attempt_id", attempt, "endpoint", cfg.EndpointURL, "identity", cfg.Identity)
	go m.finishHandshake(cl, attempt)
	return nil
}

// Disconnect gracefully closes the active connection. It is a no-op when
// Disconnected. The manager lands in Disconnected on every exit path, even
// when the close itself fails or a handshake is still in flight.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.state == StateDisconnected {
		m.mu.Unlock()
		return
	}
	cl := m.client
	m.client = nil
	m.closing = true
	m.setStateLocked(StateDisconnected)
	m.mu.Unlock()

	if cl == nil {
		return
	}
	if err := cl.Stop(); err != nil {
		// Teardown is unconditional; the error is diagnostic only.
		slog.Warn("monitor: error during graceful close", "err", err)
	}
	slog.Info("monitor: disconnected")
}

// Close releases any active connection. Intended for process shutdown.
func (m *Manager) Close() {
	m.Disconnect()
}

// --- transport callbacks ----------------------------------------------------

// finishHandshake resolves the asynchronous part of Connect.
func (m *Manager) finishHandshake(cl transport.Client, attempt string) {
	err := cl.Start(context.Background())

	m.mu.Lock()
	if err != nil {
		current := m.client == cl
		if current {
			m.client = nil
			m.setStateLocked(StateDisconnected)
		}
		m.mu.Unlock()
		slog.Warn("monitor: handshake failed", "attempt_id", attempt, "err", err)
		// A failure of an attempt Disconnect already abandoned stays in the
		// log; the user asked to leave and sees Disconnected either way.
		if current {
			m.fireError(fmt.Errorf("connect to hub: %w", err))
		}
		return
	}

	if m.closing || m.client != cl {
		// Disconnect raced the handshake: release the fresh connection and
		// stay Disconnected.
		m.mu.Unlock()
		if stopErr := cl.Stop(); stopErr != nil {
			slog.Warn("monitor: stop after raced handshake", "err", stopErr)
		}
		return
	}

	m.setStateLocked(StateConnected)
	m.mu.Unlock()
	m.metrics.Connects.Inc()
	slog.Info("monitor: connected", "attempt_id", attempt)
}

func (m *Manager) handleUpdate(payload json.RawMessage) {
	if m.store.Ingest(payload) {
		m.metrics.UpdatesReceived.Inc()
		return
	}
	m.metrics.PayloadsDropped.Inc()
	slog.Debug("monitor: dropped payload without data envelope")
}

func (m *Manager) handleClose(cl transport.Client, err error) {
	m.mu.Lock()
	if m.client != cl {
		m.mu.Unlock()
		return
	}
	m.client = nil
	m.setStateLocked(StateDisconnected)
	m.mu.Unlock()

	// Not surfaced as a hard error; the user simply sees Disconnected.
	slog.Warn("monitor: connection closed", "err", err)
}

func (m *Manager) handleReconnecting(cl transport.Client, attempt string, n int) {
	m.mu.Lock()
	if m.client != cl {
		m.mu.Unlock()
		return
	}
	m.setStateLocked(StateConnecting)
	m.mu.Unlock()

	slog.Info("monitor: reconnecting", "attempt_id", attempt, "retry", n)
}

func (m *Manager) handleReconnected(cl transport.Client, attempt string) {
	m.mu.Lock()
	if m.client != cl {
		m.mu.Unlock()
		return
	}
	m.setStateLocked(StateConnected)
	m.mu.Unlock()

	m.metrics.Reconnects.Inc()
	slog.Info("monitor: reconnected", "attempt_id", attempt)
}

// --- internal ---------------------------------------------------------------

// setStateLocked transitions the state and notifies the observer.
// Callers must hold m.mu.
func (m *Manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	m.state = s
	m.metrics.ConnectionState.Set(gaugeValue(s))
	if m.onState != nil {
		// Called with the manager lock held so transitions arrive in order.
		// Observers must be fast and must not call back into the manager.
		m.onState(s)
	}
}

func (m *Manager) fireError(err error) {
	m.mu.Lock()
	fn := m.onError
	m.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func gaugeValue(s State) float64 {
	switch s {
	case StateConnecting:
		return metrics.StateConnecting
	case StateConnected:
		return metrics.StateConnected
	default:
		return metrics.StateDisconnected
	}
}
