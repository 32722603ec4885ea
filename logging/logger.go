// Package logging provides the structured logger shared by all backends.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with descriptor-store specific helpers.
type Logger struct {
	*slog.Logger
}

// New creates a Logger with the given handler.
// If handler is nil, uses a text handler to stderr at info level.
func New(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewText creates a Logger that writes human-readable logs to w.
func NewText(w io.Writer, level slog.Level) *Logger {
	return New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// NewJSON creates a Logger that writes JSON logs to w.
func NewJSON(w io.Writer, level slog.Level) *Logger {
	return New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// Nop creates a Logger that discards all output.
func Nop() *Logger {
	return New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(1000)}))
}

// OrNop returns l, or a discarding logger when l is nil.
func OrNop(l *Logger) *Logger {
	if l == nil {
		return Nop()
	}
	return l
}

// With returns a Logger carrying the given attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// ForBackend tags all records with the backend and schema name.
func (l *Logger) ForBackend(backend, schema string) *Logger {
	return l.With("backend", backend, "schema", schema)
}

// BackendError logs a failure of the storage engine that is turned into a
// local failure signal.
func (l *Logger) BackendError(ctx context.Context, entity, op string, err error) {
	l.ErrorContext(ctx, "backend operation failed",
		"entity", entity,
		"op", op,
		"error", err,
	)
}

// Unsupported logs an operation the backend refuses to perform.
func (l *Logger) Unsupported(ctx context.Context, entity, op string) {
	l.WarnContext(ctx, "operation not supported by backend",
		"entity", entity,
		"op", op,
	)
}

// Skipped logs a record that could not be decoded and was left out of a result.
func (l *Logger) Skipped(ctx context.Context, entity string, err error) {
	l.WarnContext(ctx, "skipping malformed record",
		"entity", entity,
		"error", err,
	)
}
