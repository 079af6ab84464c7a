// Command clippy-wrap runs one agent invocation under a transparent
// pseudoterminal, reporting completed turns to the clippy broker.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/clippyhq/clippy/internal/config"
	"github.com/clippyhq/clippy/internal/session"
	"github.com/clippyhq/clippy/internal/wrapper"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath = flag.String("config", "", "path to wrapper config (optional)")
		preset     = flag.String("preset", "", "prompt pattern preset: claude, aider, generic")
		custom     = flag.String("pattern", "", "custom prompt regex (overrides -preset)")
		socketPath = flag.String("socket", "", "broker socket path (defaults to $XDG_RUNTIME_DIR/clippy/broker.sock)")
	)
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: clippy-wrap [flags] -- command [args...]")
		return 2
	}

	cfg, err := config.LoadWrapperConfig(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		return 1
	}
	if *preset != "" {
		cfg.Pattern.Preset = *preset
	}
	if *custom != "" {
		cfg.Pattern.Custom = *custom
	}
	if *socketPath != "" {
		cfg.Broker.SocketPath = *socketPath
	}

	pattern, err := resolvePattern(cfg.Pattern.Custom, cfg.Pattern.Preset)
	if err != nil {
		log.Error("invalid prompt pattern", "error", err)
		return 1
	}

	var broker *wrapper.BrokerClient
	if cfg.Broker.SocketPath != "" {
		broker = wrapper.NewBrokerClient(cfg.Broker.SocketPath, pattern, os.Getpid(), log, cfg.Broker.ReconnectBackoffMs)
	} else {
		log.Warn("no broker socket configured; running with turn detection only, nothing published")
	}

	w, err := wrapper.New(wrapper.Options{
		Command:      args,
		Pattern:      pattern,
		MaxTurnBytes: cfg.Detector.MaxTurnBytes,
		Broker:       broker,
		Log:          log,
	})
	if err != nil {
		log.Error("failed to construct wrapper", "error", err)
		return 1
	}

	go func() {
		for err := range w.Errors() {
			log.Warn("wrapper error", "error", err)
		}
	}()

	_ = w.Run()
	if _, ok := w.ExitSignal(); ok {
		w.Reraise()
		return 128
	}
	return w.ExitCode()
}

func resolvePattern(custom, preset string) (session.Pattern, error) {
	if custom != "" {
		return session.CompilePattern(custom, "custom")
	}
	src, ok := session.Presets[preset]
	if !ok {
		return session.Pattern{}, fmt.Errorf("unknown preset %q", preset)
	}
	return session.CompilePattern(src, preset)
}
