package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New builds the service-wide logger. All diagnostic output goes to stderr:
// stdout carries protocol responses and must stay clean.
func New(service, version, level string) zerolog.Logger {
	return NewWithOutput(service, version, level, os.Stderr)
}

// NewWithOutput builds a logger writing to the given destination. Used by
// tests to capture log output.
func NewWithOutput(service, version, level string, out io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	return zerolog.New(out).
		Level(lvl).
		With().
		Timestamp().
		Str("service", service).
		Str("version", version).
		Logger()
}
