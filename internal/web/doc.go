// Package web is the local user-facing surface: an embedded single page, a
// small JSON control API for connect/disconnect/clear, and a WebSocket hub
// that pushes state changes and new log records to connected pages.
package web
