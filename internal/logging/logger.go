// Package logging provides leveled logging and the event log for substrate.
// It offers two complementary outputs:
//   - A leveled slog.Logger for stderr (operational output)
//   - An EventLog for structured JSONL telemetry (events.jsonl)
package logging

import (
	"io"
	"log/slog"
	"strings"
)

// LevelTrace is a custom slog level below Debug for per-tick logging.
// At this level every tick summary is written.
const LevelTrace = slog.LevelDebug - 4

// ParseLevel maps a string level name to a slog.Level.
// Supported values: "info", "debug", "trace" (case-insensitive).
// Unknown values default to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "trace":
		return LevelTrace
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a leveled text slog.Logger writing to w.
func NewLogger(level string, w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, handlerOptions(level)))
}

// NewJSONLogger creates a leveled JSON slog.Logger writing to w.
func NewJSONLogger(level string, w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, handlerOptions(level)))
}

func handlerOptions(level string) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level: ParseLevel(level),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Label the custom trace level
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
}
