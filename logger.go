package bowgo

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/hupe1980/bowgo/bow"
)

// Logger wraps slog.Logger with bowgo-specific field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses a text handler to stderr at info level.
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

// NewJSONLogger creates a Logger that writes JSON to stderr.
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewTextLogger creates a Logger that writes human-readable text to stderr.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger creates a Logger that discards all output.
func NoopLogger() *Logger {
	return NewLogger(slog.NewTextHandler(io.Discard, nil))
}

// WithKeyframe adds a keyframe field to the logger.
func (l *Logger) WithKeyframe(id bow.KeyframeID) *Logger {
	return &Logger{
		Logger: l.Logger.With("keyframe", id),
	}
}

// LogAdd logs a keyframe insertion.
func (l *Logger) LogAdd(ctx context.Context, id bow.KeyframeID, descriptors int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "add keyframe failed",
			"keyframe", id,
			"descriptors", descriptors,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "keyframe added",
			"keyframe", id,
			"descriptors", descriptors,
		)
	}
}

// LogBatchAdd logs a batch insertion.
func (l *Logger) LogBatchAdd(ctx context.Context, count int, err error) {
	if err != nil {
		l.WarnContext(ctx, "batch add failed",
			"count", count,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "batch add completed",
			"count", count,
		)
	}
}

// LogRemove logs a keyframe suppression.
func (l *Logger) LogRemove(ctx context.Context, id bow.KeyframeID, err error) {
	if err != nil {
		l.ErrorContext(ctx, "suppress keyframe failed",
			"keyframe", id,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "keyframe suppressed",
			"keyframe", id,
		)
	}
}

// LogRetrieve logs a retrieval query. Empty results are not failures of the
// index and are logged at debug level.
func (l *Logger) LogRetrieve(ctx context.Context, descriptors, results int, err error) {
	if err != nil {
		l.DebugContext(ctx, "retrieve returned no keyframes",
			"descriptors", descriptors,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "retrieve completed",
			"descriptors", descriptors,
			"results", results,
		)
	}
}

// LogMatch logs a descriptor matching call.
func (l *Logger) LogMatch(ctx context.Context, id bow.KeyframeID, matches int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "match failed",
			"keyframe", id,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "match completed",
			"keyframe", id,
			"matches", matches,
		)
	}
}

// LogSnapshot logs a snapshot save or load.
func (l *Logger) LogSnapshot(ctx context.Context, op, location string, keyframes int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "snapshot "+op+" failed",
			"location", location,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "snapshot "+op+" completed",
			"location", location,
			"keyframes", keyframes,
		)
	}
}
