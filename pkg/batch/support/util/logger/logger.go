// Package logger provides the leveled logging utility used across the sync service.
// It wraps the standard `log` package and filters messages based on the configured level.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// LogLevel is a type representing the logging level.
type LogLevel int

const (
	// LevelDebug is used for detailed debugging information such as generated SQL.
	LevelDebug LogLevel = iota
	// LevelInfo is used for general progress messages (batch written, step updated).
	LevelInfo
	// LevelWarn is used for recoverable conditions (transient poll error, duplicate notification).
	LevelWarn
	// LevelError is used for failed operations.
	LevelError
	// LevelFatal is used for errors that terminate the process.
	LevelFatal
)

var (
	mu       sync.RWMutex
	logLevel = LevelInfo
	std      = log.New(os.Stderr, "", log.LstdFlags)
)

// SetLogLevel sets the global log level.
// Valid values are "DEBUG", "INFO", "WARN", "ERROR", "FATAL" (case-insensitive).
// Unknown values fall back to INFO.
func SetLogLevel(level string) {
	mu.Lock()
	defer mu.Unlock()
	switch strings.ToUpper(level) {
	case "DEBUG", "TRACE":
		logLevel = LevelDebug
	case "INFO":
		logLevel = LevelInfo
	case "WARN", "WARNING":
		logLevel = LevelWarn
	case "ERROR":
		logLevel = LevelError
	case "FATAL":
		logLevel = LevelFatal
	default:
		fmt.Fprintf(os.Stderr, "Unknown log level '%s' specified. Defaulting to INFO level.\n", level)
		logLevel = LevelInfo
	}
}

// Level returns the current global log level.
func Level() LogLevel {
	mu.RLock()
	defer mu.RUnlock()
	return logLevel
}

// SetOutput redirects log output. Tests use it to capture lines.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	std.SetOutput(w)
}

func output(level LogLevel, tag, format string, v ...interface{}) {
	mu.RLock()
	enabled := logLevel <= level
	mu.RUnlock()
	if !enabled {
		return
	}
	std.Printf("["+tag+"] "+format, v...)
}

// Debugf formats and outputs a DEBUG level log message.
func Debugf(format string, v ...interface{}) {
	output(LevelDebug, "DEBUG", format, v...)
}

// Infof formats and outputs an INFO level log message.
func Infof(format string, v ...interface{}) {
	output(LevelInfo, "INFO", format, v...)
}

// Warnf formats and outputs a WARN level log message.
func Warnf(format string, v ...interface{}) {
	output(LevelWarn, "WARN", format, v...)
}

// Errorf formats and outputs an ERROR level log message.
func Errorf(format string, v ...interface{}) {
	output(LevelError, "ERROR", format, v...)
}

// Fatalf formats and outputs a FATAL level log message, then exits with status 1.
func Fatalf(format string, v ...interface{}) {
	std.Fatalf("[FATAL] "+format, v...)
}

// WithRun returns a prefix helper that tags every message with a run id.
// The returned Entry is cheap and may be created per operation.
func WithRun(runID string) Entry {
	return Entry{prefix: fmt.Sprintf("run=%s ", escape(runID))}
}

// Entry is a logger bound to a fixed message prefix.
type Entry struct {
	prefix string
}

// With appends a key=value pair to the prefix.
func (e Entry) With(key string, value interface{}) Entry {
	return Entry{prefix: fmt.Sprintf("%s%s=%s ", e.prefix, key, escape(fmt.Sprint(value)))}
}

func escape(s string) string { return strings.ReplaceAll(s, "%", "%%") }

func (e Entry) Debugf(format string, v ...interface{}) { Debugf(e.prefix+format, v...) }
func (e Entry) Infof(format string, v ...interface{})  { Infof(e.prefix+format, v...) }
func (e Entry) Warnf(format string, v ...interface{})  { Warnf(e.prefix+format, v...) }
func (e Entry) Errorf(format string, v ...interface{}) { Errorf(e.prefix+format, v...) }
