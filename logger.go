package hnswtag

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with index-specific context.
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
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	}))
}

// WithSubgraph adds the tag set of a sub-graph to the logger.
func (l *Logger) WithSubgraph(tags []uint64) *Logger {
	return &Logger{
		Logger: l.Logger.With("tags", tags),
	}
}

// LogInsert logs a single insertion.
func (l *Logger) LogInsert(ctx context.Context, label uint64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "insert failed",
			"label", label,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "insert completed",
			"label", label,
		)
	}
}

// LogBatchInsert logs an AddItems call.
func (l *Logger) LogBatchInsert(ctx context.Context, count, inserted int, duration time.Duration, err error) {
	if err != nil {
		l.WarnContext(ctx, "batch insert failed",
			"total", count,
			"inserted", inserted,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "batch insert completed",
			"count", count,
			"duration", duration,
		)
	}
}

// LogProgress logs the progress of a long batch.
func (l *Logger) LogProgress(ctx context.Context, done, total int) {
	l.InfoContext(ctx, "batch insert progress",
		"done", done,
		"total", total,
	)
}

// LogSearch logs a search operation.
func (l *Logger) LogSearch(ctx context.Context, queries, k int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed",
			"queries", queries,
			"k", k,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "search completed",
			"queries", queries,
			"k", k,
		)
	}
}

// LogMaterialize logs a sub-graph build.
func (l *Logger) LogMaterialize(ctx context.Context, tags []uint64, members, m int, duration time.Duration, err error) {
	if err != nil {
		l.WarnContext(ctx, "sub-graph build failed",
			"tags", tags,
			"members", members,
			"m", m,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "sub-graph built",
			"tags", tags,
			"members", members,
			"m", m,
			"duration", duration,
		)
	}
}

// LogSave logs a save operation.
func (l *Logger) LogSave(ctx context.Context, target string, count int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "save failed",
			"target", target,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "index saved",
			"target", target,
			"count", count,
		)
	}
}

// LogLoad logs a load operation.
func (l *Logger) LogLoad(ctx context.Context, source string, count int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "load failed",
			"source", source,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "index loaded",
			"source", source,
			"count", count,
		)
	}
}
