// Command lovewise-relay serves the realtime relay for LoveWise clients.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Washington-NKE/lovewise-relay/internal/config"
	"github.com/Washington-NKE/lovewise-relay/internal/store"
	"github.com/Washington-NKE/lovewise-relay/ws"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("relay exited", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collab, closeStores, err := store.Open(ctx, cfg.DatabaseURI, cfg.ActivityURI, logger.Named("store"))
	if err != nil {
		return fmt.Errorf("open stores: %w", err)
	}
	defer closeStores()

	relay := ws.New(cfg, collab, logger)
	if err := relay.Start(ctx); err != nil {
		return fmt.Errorf("start relay: %w", err)
	}

	<-ctx.Done()
	logger.Info("relay shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return relay.Stop(shutdownCtx)
}
