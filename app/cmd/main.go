package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"scolaire/app/server"
	"scolaire/config"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := server.NewServer(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build server", "error", err)
		os.Exit(1)
	}

	go func() {
		if err := s.Run(); err != nil {
			logger.Error("server stopped with error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Received shutdown signal, shutting down server...")
	s.Stop()
}
