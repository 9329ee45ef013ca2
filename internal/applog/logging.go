// Package applog builds the engine's zerolog.Logger, fanning out to both
// stdout and the configured log file, in either of two formats: plain JSON
// for production or a zerolog.ConsoleWriter for local development.
package applog

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// New opens (creating parent directories as needed) logFilePath and returns
// a logger that writes to both stdout and that file. level is parsed with
// zerolog.ParseLevel, falling back to Info on an empty or invalid value.
// format selects the wire shape: "console" renders human-readable lines via
// zerolog.ConsoleWriter (for a developer's terminal); anything else,
// including the empty string, renders JSON lines (for log aggregation in
// production). A logger is always returned; on a file-open failure the
// logger falls back to stdout-only and the error is returned for the
// caller to log itself.
func New(logFilePath, level, format string) (zerolog.Logger, error) {
	parsedLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		parsedLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsedLevel)

	out, err := openOutput(logFilePath)
	logger := buildLogger(out, format)
	return logger, err
}

// openOutput returns the io.Writer New should log to: stdout alone if
// logFilePath is empty, or stdout fanned out to logFilePath otherwise. On
// any failure to create or open the file it returns stdout alone along
// with the error.
func openOutput(logFilePath string) (io.Writer, error) {
	if logFilePath == "" {
		return os.Stdout, nil
	}

	if err := os.MkdirAll(filepath.Dir(logFilePath), 0o755); err != nil {
		return os.Stdout, err
	}

	file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return os.Stdout, err
	}

	return io.MultiWriter(os.Stdout, file), nil
}

func buildLogger(out io.Writer, format string) zerolog.Logger {
	if format == "console" {
		return zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}).With().Timestamp().Logger()
	}
	return zerolog.New(out).With().Timestamp().Logger()
}
