// Package logging builds the structured logger shared by every component.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/phuslu/log"
)

// New returns a logger writing to stderr. Format "json" emits one JSON
// object per line; anything else uses the colourless console writer.
func New(level, format string) *log.Logger {
	return NewWithWriter(level, format, os.Stderr)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(level, format string, w io.Writer) *log.Logger {
	l := &log.Logger{
		Level:      ParseLevel(level),
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	}
	if strings.EqualFold(format, "json") {
		l.Writer = &log.IOWriter{Writer: w}
	} else {
		l.Writer = &log.ConsoleWriter{Writer: w, ColorOutput: false, QuoteString: true}
	}
	return l
}

// Tee returns a copy of base that also writes JSON lines to file, used for
// the per-run log that sits next to the CSV output.
func Tee(base *log.Logger, file io.Writer) *log.Logger {
	l := *base
	l.Writer = &log.MultiEntryWriter{
		base.Writer,
		&log.IOWriter{Writer: file},
	}
	return &l
}

// Discard returns a logger that drops everything. Used in tests.
func Discard() *log.Logger {
	return &log.Logger{Level: log.PanicLevel + 1, Writer: &log.IOWriter{Writer: io.Discard}}
}

// ParseLevel maps a config string to a level, defaulting to info.
func ParseLevel(s string) log.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return log.TraceLevel
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}
