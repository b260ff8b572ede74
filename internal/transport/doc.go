// Package transport provides the real-time hub client the connection manager
// depends on.
//
// Client is the capability surface: start one connection, stop it, subscribe
// to named push events, and observe lifecycle transitions (close,
// reconnecting, reconnected). The production implementation (WSClient) dials
// the hub over WebSocket with the subscriber identity as a user_id query
// parameter, keeps the connection alive with ping/pong, and — only after a
// successful initial handshake — redials dropped connections with truncated
// exponential backoff until the attempt budget is exhausted.
//
// Wire format: every frame is a JSON envelope {"event": string, "data": ...}.
// Frames with an unregistered event name are ignored.
package transport
