// Package logging provides the logging abstraction used across servio.
// Consumers depend on the Logger interface so the implementation can be
// swapped without touching call sites.
package logging

import (
	"fmt"

	"go.uber.org/zap"
)

// Logger provides structured logging capabilities.
type Logger interface {
	// Error logs an error message
	Error(args ...interface{})

	// Errorf logs a formatted error message
	Errorf(format string, args ...interface{})

	// Warn logs a warning message
	Warn(args ...interface{})

	// Warnf logs a formatted warning message
	Warnf(format string, args ...interface{})

	// Info logs an informational message
	Info(args ...interface{})

	// Infof logs a formatted informational message
	Infof(format string, args ...interface{})

	// Debug logs a debug message
	Debug(args ...interface{})

	// Debugf logs a formatted debug message
	Debugf(format string, args ...interface{})
}

// zapLogger implements Logger on top of a zap sugared logger.
type zapLogger struct {
	s *zap.SugaredLogger
}

// New creates a zap-backed logger at the given level ("debug", "info",
// "warn", "error").
func New(level string) (Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level parsing: %w", err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	zl, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("zap initialization: %w", err)
	}
	return &zapLogger{s: zl.Sugar()}, nil
}

// NewNop returns a logger that discards everything. Useful in tests.
func NewNop() Logger {
	return &zapLogger{s: zap.NewNop().Sugar()}
}

func (l *zapLogger) Error(args ...interface{})                 { l.s.Error(args...) }
func (l *zapLogger) Errorf(format string, args ...interface{}) { l.s.Errorf(format, args...) }
func (l *zapLogger) Warn(args ...interface{})                  { l.s.Warn(args...) }
func (l *zapLogger) Warnf(format string, args ...interface{})  { l.s.Warnf(format, args...) }
func (l *zapLogger) Info(args ...interface{})                  { l.s.Info(args...) }
func (l *zapLogger) Infof(format string, args ...interface{})  { l.s.Infof(format, args...) }
func (l *zapLogger) Debug(args ...interface{})                 { l.s.Debug(args...) }
func (l *zapLogger) Debugf(format string, args ...interface{}) { l.s.Debugf(format, args...) }

// Compile-time interface assertion.
var _ Logger = (*zapLogger)(nil)
