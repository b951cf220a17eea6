// Package logging builds the structured slog logger shared by the service and CLI.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Supported output formats.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// Config holds logging configuration.
type Config struct {
	Level  string
	Format string
	Output io.Writer
}

// NewLogger builds a slog logger for cfg. Unknown levels fall back to info and unknown
// formats fall back to JSON.
func NewLogger(cfg Config) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	level, err := ParseLevel(cfg.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case FormatText:
		handler = slog.NewTextHandler(out, opts)
	default:
		handler = slog.NewJSONHandler(out, opts)
	}

	return slog.New(handler)
}

// ParseLevel maps debug, info, warn and error (case-insensitive) to slog levels. An
// empty string is info.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

// Component returns logger scoped to a named component, or the default logger when
// logger is nil.
func Component(logger *slog.Logger, name string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("component", name)
}
