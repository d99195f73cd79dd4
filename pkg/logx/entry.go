package logx

import "fmt"

// Entry accumulates fields and an error before emitting a record.
type Entry struct {
	logger *Logger
	fields Fields
	err    error
}

// WithField adds a field to the entry.
func (e *Entry) WithField(key string, value any) *Entry {
	e.fields[key] = value
	return e
}

// WithFields adds several fields to the entry.
func (e *Entry) WithFields(fields Fields) *Entry {
	for k, v := range fields {
		e.fields[k] = v
	}
	return e
}

// WithError attaches an error to the entry.
func (e *Entry) WithError(err error) *Entry {
	e.err = err
	return e
}

// Debug emits the entry at debug level.
func (e *Entry) Debug(msg string) { e.logger.log(LevelDebug, msg, e.fields, e.err) }

// Debugf emits the entry at debug level with a formatted message.
func (e *Entry) Debugf(format string, args ...any) {
	e.logger.log(LevelDebug, sprintf(format, args...), e.fields, e.err)
}

// Info emits the entry at info level.
func (e *Entry) Info(msg string) { e.logger.log(LevelInfo, msg, e.fields, e.err) }

// Infof emits the entry at info level with a formatted message.
func (e *Entry) Infof(format string, args ...any) {
	e.logger.log(LevelInfo, sprintf(format, args...), e.fields, e.err)
}

// Warn emits the entry at warn level.
func (e *Entry) Warn(msg string) { e.logger.log(LevelWarn, msg, e.fields, e.err) }

// Warnf emits the entry at warn level with a formatted message.
func (e *Entry) Warnf(format string, args ...any) {
	e.logger.log(LevelWarn, sprintf(format, args...), e.fields, e.err)
}

// Error emits the entry at error level.
func (e *Entry) Error(msg string) { e.logger.log(LevelError, msg, e.fields, e.err) }

// Errorf emits the entry at error level with a formatted message.
func (e *Entry) Errorf(format string, args ...any) {
	e.logger.log(LevelError, sprintf(format, args...), e.fields, e.err)
}

// Fatal emits the entry at fatal level and exits.
func (e *Entry) Fatal(msg string) { e.logger.log(LevelFatal, msg, e.fields, e.err) }

// Fatalf emits the entry at fatal level with a formatted message and exits.
func (e *Entry) Fatalf(format string, args ...any) {
	e.logger.log(LevelFatal, sprintf(format, args...), e.fields, e.err)
}

func sprintf(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
