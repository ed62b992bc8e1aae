package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"streamta/config"
	"streamta/internal/indengine"
	"streamta/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		slog.Warn("unknown log level, using info", "level", cfg.LogLevel)
	}
	logger.Init("indengine", level, cfg.LogFormat)
	slog.Info("configuration loaded", "tfs", cfg.ParseTFs(), "feed", cfg.FeedKind, "workers", cfg.Workers)

	svc, err := indengine.New(cfg, nil)
	if err != nil {
		slog.Error("init failed", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := svc.Run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}
