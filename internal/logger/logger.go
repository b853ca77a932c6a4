// Package logger builds the process logger for an environment.
package logger

import (
	"log/slog"
	"os"

	"github.com/stuffr/marketplace/internal/config"
)

// Setup returns a text logger for local runs and JSON for dev and prod.
// Unknown environments get the prod setup.
func Setup(env string) *slog.Logger {
	switch env {
	case config.EnvLocal:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case config.EnvDev:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	default:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
}
