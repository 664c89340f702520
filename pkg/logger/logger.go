// Package logger builds the structured slog loggers used across the panel.
package logger

import (
	"log/slog"
	"os"
	"strings"
)

// New creates a logger writing to stdout. Level is one of debug, info,
// warn or error; anything else falls back to info. Format is json or
// text. Debug level also records source locations.
func New(level, format string) *slog.Logger {
	lvl := ParseLevel(level)

	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}

	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

// Default creates a logger with the panel's default settings, info level
// and JSON output.
func Default() *slog.Logger {
	return New("info", "json")
}

// ParseLevel maps a level name to its slog level. Unknown names map to
// info rather than failing, so a typo in LOG_LEVEL never takes the
// panel down.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Component returns a child logger tagged with the subsystem name, so
// log lines from the relay, coordinator and tracker can be told apart.
func Component(logger *slog.Logger, name string) *slog.Logger {
	return logger.With("component", name)
}
