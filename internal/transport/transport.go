package transport

import (
	"context"
	"encoding/json"
)

// Handler processes the raw payload of one named push event.
type Handler func(payload json.RawMessage)

// Client is the transport capability the connection manager depends on.
// Implementations deliver push events to registered handlers and report
// lifecycle transitions through the hook setters. All hooks must be
// registered before Start.
type Client interface {
	// Start performs the handshake. On success the client keeps receiving
	// events in the background until Stop is called or the connection is
	// lost beyond recovery. On failure no background activity remains.
	Start(ctx context.Context) error

	// Stop closes the connection and cancels any in-flight reconnect.
	// It is idempotent.
	Stop() error

	// On registers the handler for a named push event.
	On(event string, h Handler)

	// OnClose fires once when the connection is gone for good: either the
	// reconnect budget is exhausted or reconnecting is disabled. It does
	// not fire on Stop.
	OnClose(fn func(err error))

	// OnReconnecting fires at the start of each automatic reconnect attempt.
	OnReconnecting(fn func(attempt int))

	// OnReconnected fires when an automatic reconnect attempt succeeds.
	OnReconnected(fn func())
}

// Envelope is the JSON frame exchanged with the hub.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}
