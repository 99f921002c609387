package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"certifier/internal/app"
	"certifier/internal/platform/config"
	"certifier/internal/platform/httpserver"
	"certifier/internal/platform/logger"
)

// main loads configuration, wires the application and serves until SIGINT or
// SIGTERM. Business logic lives in the internal service packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Environment)

	log.Info("initializing certifier",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
		"public_base_url", cfg.PublicBaseURL,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.Bootstrap(ctx, cfg, log)
	if err != nil {
		log.Error("failed to bootstrap", "error", err)
		os.Exit(1)
	}

	application.Scheduler.Start()

	timeouts := httpserver.DefaultTimeouts()
	srv := httpserver.New(cfg.Addr, application.Router, timeouts, log)
	runErr := srv.Run(ctx)

	log.Info("shutting down background workers")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
	defer cancel()
	application.Close(shutdownCtx)

	if runErr != nil {
		log.Error("server error", "error", runErr)
		os.Exit(1)
	}
	log.Info("server stopped")
}
