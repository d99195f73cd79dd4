package logx

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Fields is a map of structured log data.
type Fields map[string]any

// Record is a single log event handed to a Formatter.
type Record struct {
	Level     Level
	Message   string
	Fields    Fields
	Err       error
	Timestamp time.Time
}

// Formatter encodes a Record into bytes ready for the output writer.
type Formatter interface {
	Format(rec *Record) ([]byte, error)
}

// ANSI colors.
const (
	colorReset      = "\033[0m"
	colorGray       = "\033[90m"
	colorCyan       = "\033[36m"
	colorRed        = "\033[31m"
	colorWhite      = "\033[97m"
	colorBoldRed    = "\033[1;31m"
	colorBoldCyan   = "\033[1;36m"
	colorBoldGreen  = "\033[1;32m"
	colorBoldYellow = "\033[1;33m"
)

// consoleFormatter renders colored single-line records for terminals.
type consoleFormatter struct {
	cfg *Config
}

func (f *consoleFormatter) Format(rec *Record) ([]byte, error) {
	var b strings.Builder

	if f.cfg.TimeFormat != "" {
		f.colored(&b, colorGray, rec.Timestamp.Format(f.cfg.TimeFormat))
		b.WriteString(" ")
	}

	b.WriteString(f.levelTag(rec.Level))
	b.WriteString(" ")

	f.colored(&b, colorWhite, rec.Message)

	if len(rec.Fields) > 0 {
		b.WriteString(" ")
		if f.cfg.EnableColors {
			b.WriteString(colorCyan)
		}
		first := true
		for k, v := range rec.Fields {
			if !first {
				b.WriteString(" ")
			}
			fmt.Fprintf(&b, "%s=%v", k, v)
			first = false
		}
		if f.cfg.EnableColors {
			b.WriteString(colorReset)
		}
	}

	if rec.Err != nil {
		b.WriteString(" ")
		f.colored(&b, colorRed, "error="+rec.Err.Error())
	}

	b.WriteString("\n")
	return []byte(b.String()), nil
}

func (f *consoleFormatter) colored(b *strings.Builder, color, s string) {
	if f.cfg.EnableColors {
		b.WriteString(color)
		b.WriteString(s)
		b.WriteString(colorReset)
		return
	}
	b.WriteString(s)
}

func (f *consoleFormatter) levelTag(level Level) string {
	if !f.cfg.EnableColors {
		return fmt.Sprintf("[%s]", level.String())
	}
	switch level {
	case LevelDebug:
		return colorBoldCyan + "[DEBUG]" + colorReset
	case LevelInfo:
		return colorBoldGreen + "[INFO ]" + colorReset
	case LevelWarn:
		return colorBoldYellow + "[WARN ]" + colorReset
	case LevelError, LevelFatal:
		return colorBoldRed + "[" + level.String() + "]" + colorReset
	default:
		return fmt.Sprintf("[%s]", level.String())
	}
}

// jsonFormatter renders one JSON object per record.
type jsonFormatter struct {
	cfg *Config
}

func (f *jsonFormatter) Format(rec *Record) ([]byte, error) {
	data := make(map[string]any, len(rec.Fields)+4)

	data["level"] = rec.Level.String()
	data["message"] = rec.Message
	if f.cfg.TimeFormat != "" {
		data["timestamp"] = rec.Timestamp.Format(time.RFC3339Nano)
	}
	for k, v := range rec.Fields {
		data[k] = v
	}
	if rec.Err != nil {
		data["error"] = rec.Err.Error()
	}

	out, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}
