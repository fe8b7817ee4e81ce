// Package logging provides the leveled logger used throughout libbundler.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

type Level int

// The zero Level is unset and behaves like Warn.
const (
	Debug Level = iota + 1
	Info
	Warn
	Error
)

type Format int

const (
	Text Format = iota
	JSON
)

// LevelIDs and FormatIDs are the names used on the command line and in
// configuration files.
var (
	LevelIDs = map[Level][]string{
		Debug: {"debug"},
		Info:  {"info"},
		Warn:  {"warn", "warning"},
		Error: {"error"},
	}
	FormatIDs = map[Format][]string{
		Text: {"text"},
		JSON: {"json"},
	}
)

func ParseLevel(s string) (Level, error) {
	return parse(LevelIDs, "log level", s)
}

func ParseFormat(s string) (Format, error) {
	return parse(FormatIDs, "log format", s)
}

func parse[E comparable](ids map[E][]string, what, s string) (E, error) {
	for v, names := range ids {
		for _, n := range names {
			if n == s {
				return v, nil
			}
		}
	}
	var zero E
	return zero, fmt.Errorf("unknown %s %q", what, s)
}

// Config controls where and how log lines are written. The zero value logs
// warnings and errors as text to stderr.
type Config struct {
	Level  Level
	Format Format
	Output io.Writer
}

// Logger is safe to use as a nil pointer, which discards everything.
type Logger struct {
	log zerolog.Logger
}

func NewLogger(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	if cfg.Format == Text {
		out = zerolog.ConsoleWriter{Out: out, NoColor: true, TimeFormat: time.TimeOnly}
	}

	lvl := zerolog.WarnLevel
	switch cfg.Level {
	case Debug:
		lvl = zerolog.DebugLevel
	case Info:
		lvl = zerolog.InfoLevel
	case Error:
		lvl = zerolog.ErrorLevel
	}

	return &Logger{log: zerolog.New(out).Level(lvl).With().Timestamp().Logger()}
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{log: zerolog.Nop()}
}

func (l *Logger) Debugf(format string, args ...any) {
	if l == nil {
		return
	}
	l.log.Debug().Msgf(format, args...)
}

func (l *Logger) Infof(format string, args ...any) {
	if l == nil {
		return
	}
	l.log.Info().Msgf(format, args...)
}

func (l *Logger) Warnf(format string, args ...any) {
	if l == nil {
		return
	}
	l.log.Warn().Msgf(format, args...)
}

func (l *Logger) Errorf(format string, args ...any) {
	if l == nil {
		return
	}
	l.log.Error().Msgf(format, args...)
}

// With returns a child logger that adds the key/value pair to every line.
func (l *Logger) With(key, value string) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{log: l.log.With().Str(key, value).Logger()}
}
