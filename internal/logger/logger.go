package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Setup builds the process logger.
//   - level: trace, debug, info, warn, error (anything else means info)
//   - format: "pretty" for a console writer, otherwise JSON lines
func Setup(level, format string) zerolog.Logger {
	return New(os.Stdout, level, format)
}

// New is Setup with an explicit destination.
func New(out io.Writer, level, format string) zerolog.Logger {
	writer := out
	if format == "pretty" {
		writer = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	return zerolog.New(writer).
		Level(lvl).
		With().
		Timestamp().
		Caller().
		Logger()
}
