// internal/util/logger.go
package util

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// LogOptions selects the handler and level of the application logger.
type LogOptions struct {
	Format string // "json" (default) or "text"
	Level  string // debug, info, warn, error
}

// NewLogger builds a structured logger writing to w.
// JSON is meant for production, text renders colored output with tint for local runs.
func NewLogger(w io.Writer, opts LogOptions) *slog.Logger {
	level := ParseLevel(opts.Level)

	var handler slog.Handler
	switch strings.ToLower(opts.Format) {
	case "text", "tint":
		handler = tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
			AddSource:  true,
		})
	default:
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			AddSource: true,
			Level:     level,
		})
	}
	return slog.New(handler)
}

// InitLogger initializes the process-wide default logger and returns it.
func InitLogger(opts LogOptions) *slog.Logger {
	logger := NewLogger(os.Stdout, opts)
	slog.SetDefault(logger)
	return logger
}

// ParseLevel maps a LOG_LEVEL value to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

// DiscardLogger returns a logger that drops everything. Used by tests.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
