// Package logger provides slog helpers shared by all domain packages.
package logger

import (
	"log/slog"
	"os"
	"strings"
)

// Scope returns the standard attribute identifying which component a log line
// came from, e.g. logger.Scope("items.service").
func Scope(scope string) slog.Attr {
	return slog.String("scope", scope)
}

// Error returns the standard attribute for attaching an error to a log line.
func Error(err error) slog.Attr {
	return slog.Any("error", err)
}

// NewLogger creates the root logger. Level comes from LOG_LEVEL (debug, info,
// warn, error); output is JSON in production (GO_ENV=production), text otherwise.
func NewLogger() *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if os.Getenv("GO_ENV") == "production" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}
