// Package logging configures the process-wide slog default logger.
package logging

import (
	"log/slog"
	"os"
)

// Init installs a text-handler slog logger writing to stderr, with the
// level controlled by LOG_LEVEL (debug|info|warn|error, default error).
func Init() {
	level := slog.LevelError

	if l, ok := os.LookupEnv("LOG_LEVEL"); ok {
		switch l {
		case "dev", "development", "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn", "warning":
			level = slog.LevelWarn
		case "error", "production", "prod":
			level = slog.LevelError
		}
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
}
