// Package logstore holds the bounded in-memory log of machine update records.
//
// The store keeps at most Capacity records, newest first; appending at
// capacity evicts the oldest entry. Ingest accepts the raw payload of one
// push event and silently drops anything that does not carry the expected
// {"data": {...}} envelope. Consumers that want push-style rendering can
// Subscribe for append/clear events; a slow subscriber loses its oldest
// pending event rather than blocking the store.
package logstore
