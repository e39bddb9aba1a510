package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is what the grid launcher, the kernel service and the CLI log
// through. Anything with slog-style key/value methods satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
	WithGroup(name string) Logger
}

// SlogLogger adapts *slog.Logger to Logger.
type SlogLogger struct {
	logger *slog.Logger
}

func New(handler slog.Handler) Logger {
	return &SlogLogger{logger: slog.New(handler)}
}

// Default writes text records at info level to stderr. It backs
// FromContext when no logger was installed.
func Default() Logger {
	return New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// Discard drops every record without formatting it.
func Discard() Logger {
	return New(slog.DiscardHandler)
}

// OrDiscard returns l, or Discard when l is nil. Config structs that take an
// optional Logger resolve it with this.
func OrDiscard(l Logger) Logger {
	if l == nil {
		return Discard()
	}
	return l
}

// JSON writes one object per record with source positions, for runs whose
// output is collected rather than read.
func JSON(w io.Writer, level slog.Level) Logger {
	return New(slog.NewJSONHandler(w, &slog.HandlerOptions{AddSource: true, Level: level}))
}

// Pretty writes colored single-line records for a terminal.
func Pretty(w io.Writer, level slog.Level) Logger {
	return New(NewPrettyHandler(w, &slog.HandlerOptions{Level: level}))
}

// ForFormat maps a --log-format value ("pretty", "json" or "text") to a
// Logger. Unknown formats get pretty.
func ForFormat(format string, w io.Writer, level slog.Level) Logger {
	switch strings.ToLower(format) {
	case "json":
		return JSON(w, level)
	case "text":
		return New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	default:
		return Pretty(w, level)
	}
}

// ForLauncher scopes l to a grid launcher's schedule, so block faults and
// launch timings say which block size, lane mode and order produced them.
func ForLauncher(l Logger, blockSize int, lanes, order string) Logger {
	return OrDiscard(l).WithGroup("grid").With(
		"block_size", blockSize,
		"lanes", lanes,
		"order", order,
	)
}

// ForKernel scopes l to one kernel launch over blocks workgroups.
func ForKernel(l Logger, kernel string, blocks int) Logger {
	return OrDiscard(l).With("kernel", kernel, "blocks", blocks)
}

type loggerKey struct{}

// FromContext returns the Logger installed by WithContext, or Default.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerKey{}).(Logger); ok {
		return l
	}
	return Default()
}

func WithContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

func (l *SlogLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l *SlogLogger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l *SlogLogger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *SlogLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

func (l *SlogLogger) With(args ...any) Logger {
	return &SlogLogger{logger: l.logger.With(args...)}
}

func (l *SlogLogger) WithGroup(name string) Logger {
	return &SlogLogger{logger: l.logger.WithGroup(name)}
}

// ParseLevel reads a --log-level value. Anything unrecognised is info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
