// Package logger provides structured, level-gated logging for the
// de-identification service, backed by zap.
//
// Each entry is written as a single console line:
//
//	2006-01-02T15:04:05.000Z0700	INFO	PIPELINE	note processed	{"action": "process", ...}
//
// Levels (lowest to highest): debug, info, warn, error.
// Entries below the configured minimum level are dropped.
//
// Messages must never contain note text. Log counts, labels, offsets and
// request IDs instead.
//
// Usage:
//
//	log := logger.New("pipeline", cfg.LogLevel)
//	log.Info("process", "note processed")
//	log.Errorf("oracle_ping", "sidecar unreachable: %v", err)
package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level represents a log severity.
type Level int

// Log severity constants, ordered lowest to highest.
const (
	LevelDebug Level = iota // fine-grained diagnostic output
	LevelInfo               // normal operational messages
	LevelWarn               // unexpected but recoverable conditions
	LevelError              // failures requiring attention
)

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Logger writes structured log lines for a single module.
type Logger struct {
	module string
	level  zap.AtomicLevel
	z      *zap.Logger
	exit   func(int)
}

// New creates a Logger for the given module writing to stderr, gated at the
// given level string. Unrecognized level strings default to "info".
func New(module, levelStr string) *Logger {
	return newWithCore(module, levelStr, func(level zap.AtomicLevel) zapcore.Core {
		enc := zap.NewDevelopmentEncoderConfig()
		enc.EncodeTime = zapcore.ISO8601TimeEncoder
		enc.EncodeLevel = zapcore.CapitalLevelEncoder
		return zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.Lock(os.Stderr), level)
	})
}

// newWithCore builds a Logger around a caller-supplied core. The core must
// honour the AtomicLevel it is given so SetLevel keeps working.
func newWithCore(module, levelStr string, build func(zap.AtomicLevel) zapcore.Core) *Logger {
	level := zap.NewAtomicLevelAt(parseLevel(levelStr).zapLevel())
	name := strings.ToUpper(module)
	return &Logger{
		module: name,
		level:  level,
		z:      zap.New(build(level)).Named(name),
		exit:   os.Exit,
	}
}

// Nop returns a Logger that discards everything. Used in tests.
func Nop() *Logger {
	return newWithCore("nop", "error", func(zap.AtomicLevel) zapcore.Core { return zapcore.NewNopCore() })
}

// Module returns the upper-cased module name.
func (l *Logger) Module() string { return l.module }

// SetLevel changes the minimum log level at runtime.
func (l *Logger) SetLevel(levelStr string) {
	l.level.SetLevel(parseLevel(levelStr).zapLevel())
}

// Zap exposes the underlying zap logger for libraries that want one.
func (l *Logger) Zap() *zap.Logger { return l.z }

// Debug logs at DEBUG level.
func (l *Logger) Debug(action, msg string) { l.z.Debug(msg, zap.String("action", action)) }

// Info logs at INFO level.
func (l *Logger) Info(action, msg string) { l.z.Info(msg, zap.String("action", action)) }

// Warn logs at WARN level.
func (l *Logger) Warn(action, msg string) { l.z.Warn(msg, zap.String("action", action)) }

// Error logs at ERROR level.
func (l *Logger) Error(action, msg string) { l.z.Error(msg, zap.String("action", action)) }

// With logs msg at INFO level with extra structured fields.
func (l *Logger) With(action, msg string, fields ...zap.Field) {
	l.z.Info(msg, append([]zap.Field{zap.String("action", action)}, fields...)...)
}

// Debugf logs a formatted message at DEBUG level.
func (l *Logger) Debugf(action, format string, args ...any) {
	if l.level.Enabled(zapcore.DebugLevel) {
		l.Debug(action, fmt.Sprintf(format, args...))
	}
}

// Infof logs a formatted message at INFO level.
func (l *Logger) Infof(action, format string, args ...any) {
	l.Info(action, fmt.Sprintf(format, args...))
}

// Warnf logs a formatted message at WARN level.
func (l *Logger) Warnf(action, format string, args ...any) {
	l.Warn(action, fmt.Sprintf(format, args...))
}

// Errorf logs a formatted message at ERROR level.
func (l *Logger) Errorf(action, format string, args ...any) {
	l.Error(action, fmt.Sprintf(format, args...))
}

// Fatal logs at ERROR level, flushes, and exits with status 1.
func (l *Logger) Fatal(action, msg string) {
	l.Error(action, msg)
	l.z.Sync() //nolint:errcheck // stderr sync fails on some terminals
	l.exit(1)
}

// Fatalf logs a formatted message at ERROR level and exits with status 1.
func (l *Logger) Fatalf(action, format string, args ...any) {
	l.Fatal(action, fmt.Sprintf(format, args...))
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error { return l.z.Sync() }

// parseLevel converts a string to a Level, defaulting to LevelInfo.
func parseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}
