package logging

import (
	"context"
	"log/slog"
)

// LevelTrace sits below DEBUG for per-request chatter such as outbound
// network attempts. It is enabled by setting a log level of "TRACE".
const LevelTrace = slog.LevelDebug - 4

// Trace logs msg at LevelTrace. Disabled handlers skip it without formatting.
func Trace(logger *slog.Logger, msg string, args ...any) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Log(context.Background(), LevelTrace, msg, args...)
}

// parseLevel maps a config level name to a slog level, defaulting to INFO.
func parseLevel(s string) slog.Level {
	switch s {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
