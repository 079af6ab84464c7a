// Command clippy-brokerd is the long-running daemon that holds the
// session table and relay buffer and serves capture/paste/list_sessions
// requests over a user-scoped unix socket.
package main

import (
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/clippyhq/clippy/internal/broker"
	"github.com/clippyhq/clippy/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to broker config (optional)")
	flag.Parse()

	cfg, err := config.LoadBrokerConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	log := newLogger(cfg.Logging)

	path, err := broker.SocketPath(cfg.Socket.RuntimeDir)
	if err != nil {
		log.Error("cannot determine broker socket path", "error", err)
		return 1
	}

	ln, err := broker.Listen(path)
	if err != nil {
		log.Error("failed to bind broker socket", "path", path, "error", err)
		return 1
	}
	log.Info("broker listening", "path", path)

	reg := prometheus.NewRegistry()
	b := broker.New(ln, reg, log)

	if cfg.Metrics.Enabled {
		go serveMetrics(cfg.Metrics.Listen, reg, log)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() { serveErr <- b.Serve() }()

	select {
	case sig := <-sigCh:
		log.Info("received signal, shutting down", "signal", sig)
		b.Shutdown()
	case err := <-serveErr:
		if err != nil {
			log.Error("broker accept loop failed", "error", err)
			return 1
		}
	}

	return 0
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func serveMetrics(addr string, reg *prometheus.Registry, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	log.Info("metrics listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Warn("metrics server stopped", "error", err)
	}
}
