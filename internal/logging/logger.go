package logging

import (
	"fmt"
	"log/slog"
	"reflect"
)

// Logger defines a minimal, printf-style logging contract.
//
// Components depend on this interface instead of a concrete logger so tests
// can swap in a no-op implementation.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Nop returns a logger that discards all output.
func Nop() Logger {
	return nopLogger{}
}

// IsNil reports whether logger is nil or wraps a nil pointer receiver.
func IsNil(logger Logger) bool {
	if logger == nil {
		return true
	}
	val := reflect.ValueOf(logger)
	switch val.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map, reflect.Func:
		return val.IsNil()
	default:
		return false
	}
}

// OrNop returns logger when non-nil, otherwise a no-op logger.
func OrNop(logger Logger) Logger {
	if IsNil(logger) {
		return Nop()
	}
	return logger
}

type componentLogger struct {
	component string
	logger    *slog.Logger
}

// NewComponentLogger returns a logger scoped to component. It resolves the
// process-wide slog default at call time, so loggers captured before startup
// configuration still emit through the configured handler.
func NewComponentLogger(component string) Logger {
	return &componentLogger{component: component}
}

// FromSlog wraps a structured logger and preserves printf-style call sites
// by formatting the message before emitting it.
func FromSlog(logger *slog.Logger, component string) Logger {
	if logger == nil {
		return Nop()
	}
	return &componentLogger{component: component, logger: logger}
}

func (l *componentLogger) base() *slog.Logger {
	logger := l.logger
	if logger == nil {
		logger = slog.Default()
	}
	if l.component != "" {
		logger = logger.With("component", l.component)
	}
	return logger
}

func (l *componentLogger) Debug(format string, args ...any) {
	l.base().Debug(fmt.Sprintf(format, args...))
}

func (l *componentLogger) Info(format string, args ...any) {
	l.base().Info(fmt.Sprintf(format, args...))
}

func (l *componentLogger) Warn(format string, args ...any) {
	l.base().Warn(fmt.Sprintf(format, args...))
}

func (l *componentLogger) Error(format string, args ...any) {
	l.base().Error(fmt.Sprintf(format, args...))
}
