// Package logger configures the process-wide slog logger: JSON output
// in production, human-readable text with debug level everywhere else.
package logger

import (
	"log/slog"
	"os"
)

var defaultLogger *slog.Logger

// Init builds the process logger for the given environment and installs
// it as the slog default.
func Init(env string) {
	var handler slog.Handler

	if env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}

	defaultLogger = slog.New(handler)
	slog.SetDefault(defaultLogger)
}

// LoggerWrapper returns the process logger, initializing a development
// one on first use so callers never hold a nil logger.
func LoggerWrapper() *slog.Logger {
	if defaultLogger == nil {
		Init("development")
	}
	return defaultLogger
}
