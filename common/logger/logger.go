package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger creates a new structured logger with JSON format
func NewLogger(serviceName string) *slog.Logger {
	return New(os.Stdout, serviceName, os.Getenv("LOG_LEVEL"))
}

// New builds the JSON logger on an arbitrary writer. Every entry carries the
// service name.
func New(w io.Writer, serviceName, level string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: getLogLevel(level),
	}

	handler := slog.NewJSONHandler(w, opts)
	return slog.New(handler).With(slog.String("service", serviceName))
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func getLogLevel(levelStr string) slog.Level {
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
