package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/machinewatch/machinewatch/internal/config"
	"github.com/machinewatch/machinewatch/internal/logstore"
	"github.com/machinewatch/machinewatch/internal/metrics"
	"github.com/machinewatch/machinewatch/internal/monitor"
	"github.com/machinewatch/machinewatch/internal/transport"
	"github.com/machinewatch/machinewatch/internal/web"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("machinewatch starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	slog.Info("config loaded",
		"hub_endpoint", cfg.Hub.Endpoint,
		"log_capacity", cfg.Log.Capacity,
		"reconnect_attempts", cfg.Reconnect.MaxAttempts,
		"http_port", cfg.HTTP.Port,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Bounded record log, newest first.
	store := logstore.New(cfg.Log.Capacity)

	reg := prometheus.NewRegistry()
	met := metrics.New(reg)

	// Connection manager with the production WebSocket transport.
	reconnectAttempts := cfg.Reconnect.MaxAttempts
	mgr := monitor.New(monitor.Options{
		Dial: func(c monitor.Config) (transport.Client, error) {
			return transport.NewWS(c.EndpointURL, c.Identity,
				transport.Options{ReconnectAttempts: reconnectAttempts})
		},
		Store:   store,
		Metrics: met,
	})

	// Push hub — forwards records and state changes to connected pages.
	hub := web.NewHub(mgr, store)
	mgr.OnStateChange(hub.BroadcastState)
	mgr.OnError(func(err error) { hub.BroadcastError(err.Error()) })
	go hub.Run(ctx)

	handler := web.New(mgr, store, web.DefaultsResponse{
		EndpointURL: cfg.Hub.Endpoint,
		Identity:    cfg.Hub.Identity,
	})

	// Watch config file for hot-reload. Reloads refresh the page defaults
	// only; an active connection is never restarted.
	go func() {
		if err := config.Watch(ctx, *configPath, func(updated *config.Config) {
			handler.SetDefaults(web.DefaultsResponse{
				EndpointURL: updated.Hub.Endpoint,
				Identity:    updated.Hub.Identity,
			})
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	// Combined HTTP server: page + control API, push hub, metrics.
	httpMux := http.NewServeMux()
	httpMux.Handle("/ws/stream", hub)
	httpMux.Handle("/metrics", metrics.Handler(reg))
	httpMux.Handle("/", handler)

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler: httpMux,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.HTTP.Port)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("machinewatch shutting down")

	// Release the hub connection before draining the local server.
	mgr.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
}
