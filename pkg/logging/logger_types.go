package logging

import (
	"io"
	"sync"
	"time"
)

// Level is the minimum severity a logger emits.
type Level int

const (
	// DebugLevel covers per-RPC and per-timer chatter. Off in production.
	DebugLevel Level = iota
	// InfoLevel covers state transitions and group changes.
	InfoLevel
	// WarnLevel covers rejected calls and lost peers.
	WarnLevel
	// ErrorLevel covers failures that force a recovery.
	ErrorLevel
)

// String returns the upper-case name used in the JSON output.
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a config or environment value onto a Level, defaulting to InfoLevel.
func ParseLevel(s string) Level {
	switch s {
	case "DEBUG", "debug":
		return DebugLevel
	case "INFO", "info", "":
		return InfoLevel
	case "WARN", "warn", "WARNING", "warning":
		return WarnLevel
	case "ERROR", "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// Field is one key/value pair attached to a log line.
type Field struct {
	Key   string
	Value any
}

// Logger is the structured logger every package in this module takes.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	// With returns a child logger that prepends fields to every line.
	With(fields ...Field) Logger
	SetLevel(level Level)
	GetLevel() Level
}

// sink is shared between a JSONLogger and all of its children so that
// SetLevel on the root affects every component logger.
type sink struct {
	writer io.Writer
	level  Level
	mu     sync.Mutex
}

// JSONLogger writes one JSON object per line.
type JSONLogger struct {
	out    *sink
	fields []Field
}

// LogEntry is the JSON shape of a single line.
type LogEntry struct {
	Time    string         `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"msg"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// NopLogger discards everything. Tests use it to keep output quiet.
type NopLogger struct{}

func (NopLogger) Debug(msg string, fields ...Field) {}
func (NopLogger) Info(msg string, fields ...Field)  {}
func (NopLogger) Warn(msg string, fields ...Field)  {}
func (NopLogger) Error(msg string, fields ...Field) {}
func (n NopLogger) With(fields ...Field) Logger     { return n }
func (NopLogger) SetLevel(level Level)              {}
func (NopLogger) GetLevel() Level                   { return ErrorLevel }

// NewNopLogger returns a Logger that drops all output.
func NewNopLogger() Logger {
	return NopLogger{}
}

// TimedOperation logs the latency of an operation when it ends.
type TimedOperation struct {
	logger Logger
	msg    string
	start  time.Time
	fields []Field
}
