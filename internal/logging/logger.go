// Package logging provides a small leveled logger over the standard
// log package, selected at startup by LOG_LEVEL.
package logging

import (
	"log"
	"os"
)

// Level represents logging verbosity.
type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

// Logger provides leveled logging.
type Logger struct {
	level Level
}

// New creates a new logger with the specified level.
func New(level Level) *Logger {
	return &Logger{level: level}
}

// NewFromEnv creates a logger based on the LOG_LEVEL environment
// variable, defaulting to Info.
func NewFromEnv() *Logger {
	return New(ParseLevel(os.Getenv("LOG_LEVEL")))
}

// ParseLevel maps an env var string to a Level, defaulting to Info on
// anything unrecognized.
func ParseLevel(s string) Level {
	switch s {
	case "ERROR":
		return LevelError
	case "WARN":
		return LevelWarn
	case "INFO", "":
		return LevelInfo
	case "DEBUG":
		return LevelDebug
	case "TRACE":
		return LevelTrace
	default:
		return LevelInfo
	}
}

func (l *Logger) Error(format string, args ...interface{}) {
	if l.level >= LevelError {
		log.Printf("[ERROR] "+format, args...)
	}
}

func (l *Logger) Warn(format string, args ...interface{}) {
	if l.level >= LevelWarn {
		log.Printf("[WARN] "+format, args...)
	}
}

func (l *Logger) Info(format string, args ...interface{}) {
	if l.level >= LevelInfo {
		log.Printf("[INFO] "+format, args...)
	}
}

func (l *Logger) Debug(format string, args ...interface{}) {
	if l.level >= LevelDebug {
		log.Printf("[DEBUG] "+format, args...)
	}
}

func (l *Logger) Trace(format string, args ...interface{}) {
	if l.level >= LevelTrace {
		log.Printf("[TRACE] "+format, args...)
	}
}

// GetLevel returns the current log level.
func (l *Logger) GetLevel() Level {
	return l.level
}

// Default is the package-level logger used where no logger has been
// injected explicitly.
var Default = NewFromEnv()
