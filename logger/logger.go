package logger

import (
	"io"
	"log/slog"
	"os"
)

type Logger interface {
	Info(msg string, args ...interface{})
	Debug(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})

	// With returns a Logger carrying additional key/value context.
	With(args ...interface{}) Logger
}

type StdLogger struct {
	internalLogger *slog.Logger
}

func New() Logger {
	l := slog.New(slog.NewTextHandler(os.Stderr, nil))
	return &StdLogger{internalLogger: l}
}

// NewWithOutput writes structured text logs to the given writer.
func NewWithOutput(w io.Writer, level slog.Level) Logger {
	l := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	return &StdLogger{internalLogger: l}
}

// Discard returns a Logger that drops everything. Useful in tests.
func Discard() Logger {
	return &StdLogger{internalLogger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func (l *StdLogger) Info(msg string, args ...interface{}) {
	l.internalLogger.Info(msg, args...)
}

func (l *StdLogger) Debug(msg string, args ...interface{}) {
	l.internalLogger.Debug(msg, args...)
}

func (l *StdLogger) Warn(msg string, args ...interface{}) {
	l.internalLogger.Warn(msg, args...)
}

func (l *StdLogger) Error(msg string, args ...interface{}) {
	l.internalLogger.Error(msg, args...)
}

func (l *StdLogger) With(args ...interface{}) Logger {
	return &StdLogger{internalLogger: l.internalLogger.With(args...)}
}
