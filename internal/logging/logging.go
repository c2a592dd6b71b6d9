// Package logging builds the process logger from config.Log.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"sheetops/internal/config"
)

// New creates a *slog.Logger writing to os.Stderr and installs it as the
// default logger via slog.SetDefault.
//
// Format "json" produces structured JSON output. Any other format produces
// human-readable text with source locations. Level is one of debug, info,
// warn, error (case-insensitive) and defaults to info.
func New(cfg config.Log) *slog.Logger {
	logger := NewWriter(os.Stderr, cfg)
	slog.SetDefault(logger)
	return logger
}

// NewWriter is New without the global side effect, writing to w.
func NewWriter(w io.Writer, cfg config.Log) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     ParseLevel(cfg.Level),
		AddSource: !isJSON(cfg.Format),
	}

	var handler slog.Handler
	if isJSON(cfg.Format) {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// ParseLevel maps a level name to a slog.Level.
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

func isJSON(format string) bool {
	return strings.EqualFold(strings.TrimSpace(format), "json")
}
