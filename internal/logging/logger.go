package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Level represents log severity levels
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	FATAL
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case DEBUG:
		return zerolog.DebugLevel
	case INFO:
		return zerolog.InfoLevel
	case WARN:
		return zerolog.WarnLevel
	case ERROR:
		return zerolog.ErrorLevel
	case FATAL:
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// ParseLevel converts a string to a Level, defaulting to INFO
func ParseLevel(s string) Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	case "FATAL":
		return FATAL
	default:
		return INFO
	}
}

// Entry is a single structured log record, as delivered to sinks
type Entry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Component string                 `json:"component,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Logger is a structured logger with a component tag and sticky fields.
// Output goes through zerolog; messages are literal and all variadic
// arguments are key-value pairs, never format verbs.
type Logger struct {
	zl        zerolog.Logger
	level     Level
	component string
	fields    map[string]interface{}
}

// Config holds logger configuration
type Config struct {
	Level      string `json:"level"`
	Output     string `json:"output"` // "stdout", "stderr", or file path
	JSONFormat bool   `json:"json_format"`
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// New creates a logger from the given configuration
func New(cfg *Config) *Logger {
	var output io.Writer = os.Stdout
	switch cfg.Output {
	case "", "stdout":
	case "stderr":
		output = os.Stderr
	default:
		if file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644); err == nil {
			output = file
		}
	}
	return newLogger(output, ParseLevel(cfg.Level), cfg.JSONFormat)
}

func newLogger(w io.Writer, level Level, jsonFormat bool) *Logger {
	if !jsonFormat {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "2006-01-02 15:04:05", NoColor: true}
	}
	zl := zerolog.New(w).Level(level.zerolog()).With().Timestamp().Logger()
	return &Logger{
		zl:     zl,
		level:  level,
		fields: make(map[string]interface{}),
	}
}

// Default returns the process-wide logger instance
func Default() *Logger {
	once.Do(func() {
		if defaultLogger == nil {
			defaultLogger = New(&Config{Level: "INFO", Output: "stdout", JSONFormat: true})
		}
	})
	return defaultLogger
}

// SetDefault replaces the process-wide logger
func SetDefault(l *Logger) {
	defaultLogger = l
}

var (
	sinkMu sync.RWMutex
	sinks  []func(Entry)
)

// AddSink registers a callback that receives every emitted entry from
// every logger. Used by the API layer to stream logs to connected
// clients. Sinks must not block.
func AddSink(fn func(Entry)) {
	sinkMu.Lock()
	defer sinkMu.Unlock()
	sinks = append(sinks, fn)
}

// WithComponent returns a copy of the logger tagged with a component
func (l *Logger) WithComponent(component string) *Logger {
	nl := l.clone()
	nl.component = component
	return nl
}

// WithField returns a copy of the logger with an additional sticky field
func (l *Logger) WithField(key string, value interface{}) *Logger {
	nl := l.clone()
	nl.fields[key] = value
	return nl
}

// WithError returns a copy of the logger carrying an error field
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	nl := l.clone()
	nl.fields["error"] = err.Error()
	return nl
}

func (l *Logger) clone() *Logger {
	fields := make(map[string]interface{}, len(l.fields))
	for k, v := range l.fields {
		fields[k] = v
	}
	return &Logger{
		zl:        l.zl,
		level:     l.level,
		component: l.component,
		fields:    fields,
	}
}

// log emits one record. args are key-value pairs: string keys at even
// positions. A malformed pair is skipped rather than dropped whole.
func (l *Logger) log(level Level, msg string, args ...interface{}) {
	if level < l.level {
		return
	}

	kv := keyValues(args)

	ev := l.zl.WithLevel(level.zerolog())
	if l.component != "" {
		ev = ev.Str("component", l.component)
	}
	for k, v := range l.fields {
		ev = ev.Interface(k, v)
	}
	for k, v := range kv {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)

	entry := Entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level.String(),
		Message:   msg,
		Component: l.component,
	}
	if len(l.fields)+len(kv) > 0 {
		entry.Fields = make(map[string]interface{}, len(l.fields)+len(kv))
		for k, v := range l.fields {
			entry.Fields[k] = v
		}
		for k, v := range kv {
			entry.Fields[k] = v
		}
	}

	sinkMu.RLock()
	for _, sink := range sinks {
		sink(entry)
	}
	sinkMu.RUnlock()
}

func keyValues(args []interface{}) map[string]interface{} {
	if len(args) == 0 {
		return nil
	}
	kv := make(map[string]interface{}, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		// Errors render as strings so JSON output stays readable
		if err, isErr := args[i+1].(error); isErr {
			if err != nil {
				kv[key] = err.Error()
			} else {
				kv[key] = nil
			}
			continue
		}
		kv[key] = args[i+1]
	}
	return kv
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, args ...interface{}) {
	l.log(DEBUG, msg, args...)
}

// Info logs an info message
func (l *Logger) Info(msg string, args ...interface{}) {
	l.log(INFO, msg, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, args ...interface{}) {
	l.log(WARN, msg, args...)
}

// Error logs an error message
func (l *Logger) Error(msg string, args ...interface{}) {
	l.log(ERROR, msg, args...)
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(msg string, args ...interface{}) {
	l.log(FATAL, msg, args...)
	os.Exit(1)
}

// Package-level helpers for the default logger

func Debug(msg string, args ...interface{}) { Default().Debug(msg, args...) }
func Info(msg string, args ...interface{})  { Default().Info(msg, args...) }
func Warn(msg string, args ...interface{})  { Default().Warn(msg, args...) }
func Error(msg string, args ...interface{}) { Default().Error(msg, args...) }
func Fatal(msg string, args ...interface{}) { Default().Fatal(msg, args...) }

// WithComponent returns a default-logger copy tagged with a component
func WithComponent(component string) *Logger {
	return Default().WithComponent(component)
}
