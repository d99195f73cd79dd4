// Package logx provides leveled, structured logging with console and
// JSON output. A package-level default logger covers the common case;
// New builds independent loggers for tests or alternate outputs.
package logx

import (
	"io"
	"sync"
)

var (
	defaultMu     sync.RWMutex
	defaultLogger = New(LoadFromEnv())
)

// Default returns the package-level logger.
func Default() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// SetDefault replaces the package-level logger.
func SetDefault(l *Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = l
}

// SetLevel changes the default logger's minimum level.
func SetLevel(level Level) { Default().SetLevel(level) }

// SetOutput redirects the default logger's output.
func SetOutput(w io.Writer) { Default().SetOutput(w) }

// WithField starts an entry on the default logger with one field.
func WithField(key string, value any) *Entry { return Default().WithField(key, value) }

// WithFields starts an entry on the default logger with several fields.
func WithFields(fields Fields) *Entry { return Default().WithFields(fields) }

// WithError starts an entry on the default logger carrying an error.
func WithError(err error) *Entry { return Default().WithError(err) }

// Debug logs at debug level on the default logger.
func Debug(msg string) { Default().Debug(msg) }

// Debugf logs a formatted message at debug level on the default logger.
func Debugf(format string, args ...any) { Default().Debugf(format, args...) }

// Info logs at info level on the default logger.
func Info(msg string) { Default().Info(msg) }

// Infof logs a formatted message at info level on the default logger.
func Infof(format string, args ...any) { Default().Infof(format, args...) }

// Warn logs at warn level on the default logger.
func Warn(msg string) { Default().Warn(msg) }

// Warnf logs a formatted message at warn level on the default logger.
func Warnf(format string, args ...any) { Default().Warnf(format, args...) }

// Error logs at error level on the default logger.
func Error(msg string) { Default().Error(msg) }

// Errorf logs a formatted message at error level on the default logger.
func Errorf(format string, args ...any) { Default().Errorf(format, args...) }

// Fatal logs at fatal level on the default logger and exits.
func Fatal(msg string) { Default().Fatal(msg) }

// Fatalf logs a formatted message at fatal level on the default logger and exits.
func Fatalf(format string, args ...any) { Default().Fatalf(format, args...) }
