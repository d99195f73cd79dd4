package logx

import (
	"io"
	"os"
	"sync"
	"time"
)

// Logger writes leveled, structured log records.
type Logger struct {
	mu        sync.Mutex
	cfg       *Config
	formatter Formatter
	out       io.Writer
	exitFunc  func(int)
}

// New creates a Logger from cfg. A nil cfg uses DefaultConfig.
func New(cfg *Config) *Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}

	var formatter Formatter
	switch cfg.Format {
	case FormatJSON:
		formatter = &jsonFormatter{cfg: cfg}
	default:
		formatter = &consoleFormatter{cfg: cfg}
	}

	return &Logger{
		cfg:       cfg,
		formatter: formatter,
		out:       cfg.Output,
		exitFunc:  os.Exit,
	}
}

// SetLevel changes the minimum level at runtime.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cfg.Level = level
}

// SetOutput redirects log output.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out = w
}

func (l *Logger) log(level Level, msg string, fields Fields, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.cfg.Level.Enabled(level) {
		return
	}

	rec := &Record{
		Level:     level,
		Message:   msg,
		Fields:    fields,
		Err:       err,
		Timestamp: time.Now(),
	}

	data, ferr := l.formatter.Format(rec)
	if ferr != nil {
		return
	}
	l.out.Write(data)

	if level == LevelFatal {
		l.exitFunc(1)
	}
}

// WithField starts an entry with a single field.
func (l *Logger) WithField(key string, value any) *Entry {
	return &Entry{logger: l, fields: Fields{key: value}}
}

// WithFields starts an entry with several fields.
func (l *Logger) WithFields(fields Fields) *Entry {
	e := &Entry{logger: l, fields: make(Fields, len(fields))}
	for k, v := range fields {
		e.fields[k] = v
	}
	return e
}

// WithError starts an entry carrying an error.
func (l *Logger) WithError(err error) *Entry {
	return &Entry{logger: l, fields: Fields{}, err: err}
}

// Debug logs a message at debug level.
func (l *Logger) Debug(msg string) { l.log(LevelDebug, msg, nil, nil) }

// Debugf logs a formatted message at debug level.
func (l *Logger) Debugf(format string, args ...any) {
	l.log(LevelDebug, sprintf(format, args...), nil, nil)
}

// Info logs a message at info level.
func (l *Logger) Info(msg string) { l.log(LevelInfo, msg, nil, nil) }

// Infof logs a formatted message at info level.
func (l *Logger) Infof(format string, args ...any) {
	l.log(LevelInfo, sprintf(format, args...), nil, nil)
}

// Warn logs a message at warn level.
func (l *Logger) Warn(msg string) { l.log(LevelWarn, msg, nil, nil) }

// Warnf logs a formatted message at warn level.
func (l *Logger) Warnf(format string, args ...any) {
	l.log(LevelWarn, sprintf(format, args...), nil, nil)
}

// Error logs a message at error level.
func (l *Logger) Error(msg string) { l.log(LevelError, msg, nil, nil) }

// Errorf logs a formatted message at error level.
func (l *Logger) Errorf(format string, args ...any) {
	l.log(LevelError, sprintf(format, args...), nil, nil)
}

// Fatal logs a message at fatal level and exits.
func (l *Logger) Fatal(msg string) { l.log(LevelFatal, msg, nil, nil) }

// Fatalf logs a formatted message at fatal level and exits.
func (l *Logger) Fatalf(format string, args ...any) {
	l.log(LevelFatal, sprintf(format, args...), nil, nil)
}
