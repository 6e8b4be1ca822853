// Package logging configures the structured logger shared by a trace session.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Configure sets the global logger to write human-readable records to stderr
// at the given level. Unknown levels fall back to warn.
func Configure(level string) zerolog.Logger {
	return ConfigureOutput(os.Stderr, level)
}

// ConfigureOutput is like Configure but writes to w.
func ConfigureOutput(w io.Writer, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: w}).
		Level(ParseLevel(level)).
		With().
		Timestamp().
		Str("component", "tasktrace").
		Logger()

	return log.Logger
}

// ParseLevel converts a level name into a zerolog level.
func ParseLevel(level string) zerolog.Level {
	l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		return zerolog.WarnLevel
	}

	return l
}
