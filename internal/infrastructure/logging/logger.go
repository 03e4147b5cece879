// Package logging builds the service's structured zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logger configuration
type Config struct {
	Level       string
	Format      string // json or console
	Output      io.Writer
	ServiceName string
}

// New creates a logger with the given configuration. Unknown levels fall back to info.
func New(cfg Config) zerolog.Logger {
	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	var zl zerolog.Logger
	if strings.EqualFold(cfg.Format, "console") {
		zl = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		})
	} else {
		zl = zerolog.New(output)
	}

	return zl.Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Logger()
}

// ParseLevel converts a level name to a zerolog level
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}
