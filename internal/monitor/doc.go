// Package monitor owns the hub connection lifecycle.
//
// Manager is a state machine over Disconnected, Connecting and Connected.
// Connect validates the identity, builds one transport via the injectable
// dial function, and resolves the handshake asynchronously; the transport's
// lifecycle hooks drive the remaining transitions. At most one transport is
// live per manager, Disconnect always lands in Disconnected regardless of
// close errors, and a Disconnect racing an in-flight handshake stops the
// transport as soon as the attempt resolves.
package monitor
