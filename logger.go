package ndb

import (
	"context"
	"log/slog"
	"os"

	"github.com/hupe1980/ndb/database"
)

// Logger wraps slog.Logger with ndb-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithStore adds the store path and ID to the logger.
func (l *Logger) WithStore(path, id string) *Logger {
	return &Logger{
		Logger: l.Logger.With("path", path, "store_id", id),
	}
}

// WithAddress adds an address field to the logger.
func (l *Logger) WithAddress(addr database.Address) *Logger {
	return &Logger{
		Logger: l.Logger.With("addr", addr.String()),
	}
}

// LogOpen logs opening a store.
func (l *Logger) LogOpen(ctx context.Context, path string, stats database.Stats, err error) {
	if err != nil {
		l.ErrorContext(ctx, "open failed",
			"path", path,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "store opened",
			"path", path,
			"store_id", stats.ID.String(),
			"file_size", stats.FileSize,
			"live_blocks", stats.LiveBlocks,
			"read_only", stats.ReadOnly,
		)
	}
}

// LogClose logs closing a store.
func (l *Logger) LogClose(ctx context.Context, path string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "close failed",
			"path", path,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "store closed",
			"path", path,
		)
	}
}

// LogCreate logs creating a constant.
func (l *Logger) LogCreate(ctx context.Context, tag string, addr database.Address, err error) {
	if err != nil {
		l.ErrorContext(ctx, "create failed",
			"tag", tag,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "create completed",
			"tag", tag,
			"addr", addr.String(),
		)
	}
}

// LogRelease logs deleting a constant or purging interned records.
func (l *Logger) LogRelease(ctx context.Context, addr database.Address, released int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "release failed",
			"addr", addr.String(),
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "release completed",
			"addr", addr.String(),
			"released", released,
		)
	}
}

// LogSnapshot logs writing a snapshot.
func (l *Logger) LogSnapshot(ctx context.Context, target string, size int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "snapshot failed",
			"target", target,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "snapshot saved",
			"target", target,
			"bytes", size,
		)
	}
}

// LogRestore logs restoring a snapshot.
func (l *Logger) LogRestore(ctx context.Context, source, path string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "restore failed",
			"source", source,
			"path", path,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "snapshot restored",
			"source", source,
			"path", path,
		)
	}
}

// LogValidate logs a validation pass.
func (l *Logger) LogValidate(ctx context.Context, path string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "validation failed",
			"path", path,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "validation completed",
			"path", path,
		)
	}
}
