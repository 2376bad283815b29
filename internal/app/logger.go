package app

import (
	"io"
	"log/slog"
	"time"
)

// newLogger creates a logger instance for one App. It never touches the
// process-global logger, so parallel test apps stay isolated. Text output
// drops the timestamp attribute: step numbers already order the run, and
// stable lines keep integration-test log assertions simple.
func newLogger(levelStr, formatStr string, outW io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(levelStr)); err != nil {
		level = slog.LevelInfo
	}

	if formatStr == "json" {
		return slog.New(slog.NewJSONHandler(outW, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(slog.NewTextHandler(outW, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				if _, ok := a.Value.Any().(time.Time); ok {
					return slog.Attr{}
				}
			}
			return a
		},
	}))
}
