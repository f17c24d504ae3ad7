// Package logger configures the process-wide slog logger: JSON output
// in production, plain text everywhere else.
package logger

import (
	"log/slog"
	"os"
)

// Log is the shared logger. Nil until Setup runs.
var Log *slog.Logger

// Setup builds the logger for the given environment and installs it as
// the slog default.
func Setup(env string) {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	var handler slog.Handler
	switch env {
	case "production":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	Log = slog.New(handler)
	slog.SetDefault(Log)
}

// Convenience wrappers over the shared logger.

func Info(msg string, args ...any) {
	Log.Info(msg, args...)
}

func Warn(msg string, args ...any) {
	Log.Warn(msg, args...)
}

func Error(msg string, args ...any) {
	Log.Error(msg, args...)
}

func Debug(msg string, args ...any) {
	Log.Debug(msg, args...)
}
