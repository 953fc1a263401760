// Package log provides the structured logging used by StreamForge
// components. It is a thin, leveled Field API over log/slog so services
// never touch slog handlers directly.
package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Level represents the severity of a log message.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// String returns the canonical lowercase name of the level.
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "debug"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	default:
		return "info"
	}
}

// ParseLevel converts a level name into a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "", "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	}
	return InfoLevel, fmt.Errorf("log: unknown level %q", s)
}

// Field is a single structured key/value pair.
type Field struct {
	Key   string
	Value any
}

// Str builds a string field.
func Str(key, value string) Field { return Field{Key: key, Value: value} }

// Int builds an int field.
func Int(key string, value int) Field { return Field{Key: key, Value: value} }

// Int64 builds an int64 field.
func Int64(key string, value int64) Field { return Field{Key: key, Value: value} }

// Bool builds a bool field.
func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }

// Dur builds a duration field.
func Dur(key string, value time.Duration) Field { return Field{Key: key, Value: value.String()} }

// Err builds the conventional error field. A nil error logs as empty.
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: ""}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Component tags logs with the owning component name.
func Component(name string) Field { return Field{Key: "component", Value: name} }

// Logger is the logging interface handed to every service.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// With returns a child logger that always carries the given fields.
	With(fields ...Field) Logger
}

// Config selects the output level and format ("text" or "json").
type Config struct {
	Level  string
	Format string
}

type slogLogger struct {
	base *slog.Logger
}

// Option configures a Logger under construction.
type Option func(*builder)

type builder struct {
	level  Level
	format string
	out    io.Writer
}

// WithLevel sets the minimum level emitted.
func WithLevel(level Level) Option { return func(b *builder) { b.level = level } }

// WithFormat selects "text" or "json" output.
func WithFormat(format string) Option { return func(b *builder) { b.format = format } }

// WithOutput directs log output to w.
func WithOutput(w io.Writer) Option { return func(b *builder) { b.out = w } }

// NewLogger builds a Logger. Defaults: info level, text format, stderr.
func NewLogger(opts ...Option) Logger {
	b := &builder{level: InfoLevel, format: "text", out: os.Stderr}
	for _, opt := range opts {
		opt(b)
	}
	ho := &slog.HandlerOptions{Level: toSlogLevel(b.level)}
	var h slog.Handler
	if strings.EqualFold(b.format, "json") {
		h = slog.NewJSONHandler(b.out, ho)
	} else {
		h = slog.NewTextHandler(b.out, ho)
	}
	return &slogLogger{base: slog.New(h)}
}

// ApplyConfig builds a Logger from a Config, validating the level name.
func ApplyConfig(cfg *Config) (Logger, error) {
	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	return NewLogger(WithLevel(lvl), WithFormat(cfg.Format)), nil
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() Logger {
	return &slogLogger{base: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func (l *slogLogger) Debug(msg string, fields ...Field) { l.base.Debug(msg, attrs(fields)...) }
func (l *slogLogger) Info(msg string, fields ...Field)  { l.base.Info(msg, attrs(fields)...) }
func (l *slogLogger) Warn(msg string, fields ...Field)  { l.base.Warn(msg, attrs(fields)...) }
func (l *slogLogger) Error(msg string, fields ...Field) { l.base.Error(msg, attrs(fields)...) }

func (l *slogLogger) With(fields ...Field) Logger {
	return &slogLogger{base: l.base.With(attrs(fields)...)}
}

func attrs(fields []Field) []any {
	out := make([]any, 0, len(fields))
	for _, f := range fields {
		out = append(out, slog.Any(f.Key, f.Value))
	}
	return out
}

func toSlogLevel(l Level) slog.Level {
	switch l {
	case DebugLevel:
		return slog.LevelDebug
	case WarnLevel:
		return slog.LevelWarn
	case ErrorLevel:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
