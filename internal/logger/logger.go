package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Logger is the interface romedit's cmd/ commands log through. It wraps
// slog.Logger so a run can be pointed at plain JSON for scripting or at the
// colored Pretty handler for interactive use, and so tests can substitute
// their own sink.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
	WithGroup(name string) Logger
}

// SlogLogger is a Logger implementation that wraps slog.Logger.
type SlogLogger struct {
	logger *slog.Logger
}

// New creates a new Logger with the given handler.
func New(handler slog.Handler) Logger {
	return &SlogLogger{
		logger: slog.New(handler),
	}
}

// Default creates a Logger with default text handler writing to stderr.
func Default() Logger {
	return New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// JSON creates a Logger with JSON handler for production use.
func JSON(w io.Writer, level slog.Level) Logger {
	return New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		AddSource: true,
		Level:     level,
	}))
}

// Pretty creates a Logger with colored pretty output for CLI use.
func Pretty(w io.Writer, level slog.Level) Logger {
	return New(NewPrettyHandler(w, &slog.HandlerOptions{
		AddSource: true,
		Level:     level,
	}))
}

// FromContext retrieves a Logger from ctx, or Default() if ctx has none
// attached.
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(loggerKey{}).(Logger); ok {
		return logger
	}
	return Default()
}

// WithContext adds the logger to the context.
func WithContext(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

type loggerKey struct{}

// Implementation of Logger interface

func (l *SlogLogger) Debug(msg string, args ...any) {
	l.logger.Debug(msg, args...)
}

func (l *SlogLogger) Info(msg string, args ...any) {
	l.logger.Info(msg, args...)
}

func (l *SlogLogger) Warn(msg string, args ...any) {
	l.logger.Warn(msg, args...)
}

func (l *SlogLogger) Error(msg string, args ...any) {
	l.logger.Error(msg, args...)
}

func (l *SlogLogger) With(args ...any) Logger {
	return &SlogLogger{
		logger: l.logger.With(args...),
	}
}

func (l *SlogLogger) WithGroup(name string) Logger {
	return &SlogLogger{
		logger: l.logger.WithGroup(name),
	}
}

// FieldWarning is satisfied by a warning-class error that knows which
// entity, row and field it came from (pkg/rom.FieldWarning implements it).
// WarnAll breaks one out into structured attributes instead of logging it
// as an opaque error string.
type FieldWarning interface {
	error
	Unwrap() error
	Fields() (entity string, row int, field string)
}

// WithField tags l with the entity/row/field a warning is about, so a
// dump/build run's stderr reads as a table of rows instead of a wall of
// identically-shaped error strings. PrettyHandler colors these three keys
// to make the table scannable at a terminal.
func WithField(l Logger, entity string, row int, field string) Logger {
	return l.With("entity", entity, "row", row, "field", field)
}

// WarnAll logs each error in errs at Warn level under msg. rom.Dump and
// rom.Load return their warning-class field errors (romerr.Warning: value
// overflow, invalid encoding, pointer out of range) this way under
// strict=false, one call site instead of a loop at every cmd/ caller. A
// FieldWarning is logged through WithField; anything else is logged as a
// bare "error" attribute.
func WarnAll(l Logger, msg string, errs []error) {
	for _, err := range errs {
		if fw, ok := err.(FieldWarning); ok {
			entity, row, field := fw.Fields()
			WithField(l, entity, row, field).Warn(msg, "error", fw.Unwrap())
			continue
		}
		l.Warn(msg, "error", err)
	}
}

// ParseLevel converts a string level to slog.Level.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
