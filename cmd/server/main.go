// Package main is the entry point for the job portal API server.
//
// main only reads configuration, builds the logger and hands both to the
// server package, which owns everything else.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/sakif/job-portal/internal/config"
	"github.com/sakif/job-portal/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// The configured logger needs the config; fall back to the default.
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	srv, err := server.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT or SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// newLogger writes human-readable text in development and JSON in production.
func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
