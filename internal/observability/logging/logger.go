package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options configures a process logger. The zero value logs info-level JSON
// to stdout with no service attribute.
type Options struct {
	Service string
	Level   string
	Writer  io.Writer
}

func New(opts Options) *slog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: parseLevel(opts.Level),
	})
	logger := slog.New(handler)
	if opts.Service != "" {
		logger = logger.With("service", opts.Service)
	}
	return logger
}

// NewJSONLogger is the two-argument form the binaries use.
func NewJSONLogger(service, level string) *slog.Logger {
	return New(Options{Service: service, Level: level})
}

func parseLevel(level string) slog.Level {
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
