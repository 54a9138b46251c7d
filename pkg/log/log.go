// Package log configures the process-wide slog logger for the stitch
// binaries.
package log

import (
	"io"
	"log/slog"
	"strings"
)

// Setup installs a text logger writing to w as the process default and
// returns it for callers that thread loggers explicitly.
func Setup(w io.Writer, logLevel string) *slog.Logger {
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(logLevel),
	}))
	slog.SetDefault(logger)

	return logger
}

// ParseLevel maps a level name to its slog level, defaulting to info for
// anything unrecognized.
func ParseLevel(logLevel string) slog.Level {
	switch strings.ToLower(logLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithModule tags the default logger with a module attribute.
func WithModule(module string) *slog.Logger {
	return slog.With("module", module)
}
