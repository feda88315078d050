// Package logger builds the process-wide structured logger.
package logger

import (
	"log/slog"
	"os"
)

// New returns a slog logger writing to stdout. AUMON_LOG_FORMAT=text
// switches from JSON to the human-readable handler, AUMON_LOG_LEVEL=debug
// lowers the level.
func New() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("AUMON_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if os.Getenv("AUMON_LOG_FORMAT") == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
