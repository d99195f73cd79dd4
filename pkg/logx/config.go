package logx

import (
	"io"
	"os"
	"strings"
	"time"
)

// Format selects the output encoding.
type Format string

const (
	// FormatConsole is colored, human-oriented output (default).
	FormatConsole Format = "console"
	// FormatJSON is one JSON object per line.
	FormatJSON Format = "json"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum level that gets written.
	Level Level

	// Format is the output encoding.
	Format Format

	// EnableColors enables ANSI colors (console format only).
	EnableColors bool

	// TimeFormat is the timestamp layout. Empty disables timestamps.
	TimeFormat string

	// Output is the destination writer. Defaults to os.Stdout.
	Output io.Writer
}

// DefaultConfig returns the default logger configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:        LevelInfo,
		Format:       FormatConsole,
		EnableColors: true,
		TimeFormat:   time.RFC3339,
		Output:       os.Stdout,
	}
}

// LoadFromEnv builds a Config from LOG_LEVEL, LOG_FORMAT and LOG_COLOR.
func LoadFromEnv() *Config {
	cfg := DefaultConfig()

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Level = ParseLevel(level)
	}

	if format := os.Getenv("LOG_FORMAT"); format != "" {
		switch strings.ToLower(format) {
		case "json":
			cfg.Format = FormatJSON
		case "console":
			cfg.Format = FormatConsole
		}
	}

	if color := os.Getenv("LOG_COLOR"); color != "" {
		cfg.EnableColors = strings.ToLower(color) == "true" || color == "1"
	}

	return cfg
}
