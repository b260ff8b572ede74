// Package metrics defines the Prometheus instrumentation for the monitor:
// counters for received and dropped updates, connects and reconnects, and a
// gauge tracking the connection state (0 disconnected, 1 connecting,
// 2 connected). Metrics are registered on a caller-supplied registry and
// exposed through promhttp.
package metrics
