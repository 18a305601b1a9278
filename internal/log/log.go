// Package log builds slog loggers from a small config so the binary
// and its tests share one setup path.
package log

import (
	"io"
	"log/slog"
	"strings"
)

// Logger is an alias so callers don't import log/slog everywhere.
type Logger = *slog.Logger

// Config controls handler selection and verbosity.
type Config struct {
	Level     string // debug, info, warn, error
	JSON      bool   // JSON handler instead of text
	AddSource bool   // annotate records with file:line
}

// NewWithWriter returns a logger writing to w.
func NewWithWriter(w io.Writer, cfg Config) Logger {
	opts := &slog.HandlerOptions{
		Level:     ParseLevel(cfg.Level),
		AddSource: cfg.AddSource,
	}
	var h slog.Handler
	if cfg.JSON {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h)
}

// NewNop returns a logger that discards everything. For tests.
func NewNop() Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.Level(127),
	}))
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
