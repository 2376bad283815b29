// Package ctxlog carries a slog.Logger through context.Context so that every
// layer of the engine logs through the logger configured by the driver.
package ctxlog

import (
	"context"
	"io"
	"log/slog"
)

type key struct{}

var loggerKey = key{}

// WithLogger returns a child context carrying the given logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext extracts the logger placed in the context by WithLogger. A
// missing logger is a wiring mistake in the caller, not a runtime condition,
// so it panics rather than silently logging to a default destination.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return logger
	}
	panic("ctxlog: logger missing from context")
}

// Discard returns a logger that drops every record. Used by tests and by
// library entry points that are exercised without a configured driver.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
