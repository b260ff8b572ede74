// Package config loads and watches the monitor configuration file
// (config.yaml).
//
// Top-level types:
//   - Config{Hub, Log, Reconnect, HTTP} — full config tree parsed from YAML
//   - HubConfig — endpoint, identity (prefilled into the page, overridable
//     there while disconnected)
//   - LogConfig — capacity of the in-memory record buffer
//   - ReconnectConfig — max automatic reconnect attempts after a drop
//   - HTTPConfig — local listen port for the page, API and metrics
//
// Load(path) reads the YAML file, applies defaults (50 records, 5 reconnect
// attempts, port 8080), then validates ranges and the endpoint scheme.
//
// Watch(ctx, path, onChange) uses fsnotify to detect saves and calls onChange
// with the newly parsed Config. The burst of events one save produces is
// debounced into a single reload, and atomic saves that replace the inode are
// followed by re-adding the watch. Reloads are advisory: they refresh the
// defaults offered to the page and never restart an active connection; a save
// that fails to parse keeps the previous values.
package config
