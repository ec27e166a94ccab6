// Package logging builds the process logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/roach88/ledger/internal/config"
)

// New creates a *slog.Logger writing to os.Stderr and installs it as the
// default logger via slog.SetDefault.
func New(cfg config.LogConfig) *slog.Logger {
	logger := NewWithWriter(cfg, os.Stderr)
	slog.SetDefault(logger)
	return logger
}

// NewWithWriter creates a logger writing to w without touching the default.
//
// Format "json" produces structured JSON output; anything else produces
// text. Level is one of debug, info, warn, error (case-insensitive) and
// defaults to info.
func NewWithWriter(cfg config.LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
