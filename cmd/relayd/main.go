// relayd is an ActivityPub relay: it accepts Follow requests from remote
// instances, and rebroadcasts every public activity it receives from one
// subscriber to every other subscriber.
//
// Usage:
//
//	relayd /path/to/config.yaml
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mastodon-ml/relay/internal/config"
	"github.com/mastodon-ml/relay/internal/relay"
)

func main() {
	logLevel := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	if len(os.Args) < 2 {
		slog.Error("usage: relayd /path/to/config.yaml")
		os.Exit(1)
	}

	slog.Info("starting relayd")

	cfg, err := config.Load(os.Args[1])
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("config loaded", "domain", cfg.Domain, "listen", cfg.ListenAddr(), "workers", cfg.Workers)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sup, err := relay.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to start relay", "error", err)
		os.Exit(2)
	}

	if err := sup.Run(ctx); err != nil {
		slog.Error("relay exited with error", "error", err)
		os.Exit(1)
	}

	slog.Info("relayd stopped")
}
