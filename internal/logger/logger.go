// Package logger provides the process-wide structured logger for the chat
// service. Every component receives the same instance; the level is fixed by
// whoever calls Get first, normally main after reading the config.
package logger

import (
	"sync"
)

// Log levels accepted in the log_level config key.
const (
	DebugLevel = "debug"
	InfoLevel  = "info"
	WarnLevel  = "warn"
	ErrorLevel = "error"
)

var (
	globalLogger *Logger
	once         sync.Once
)

// Get returns the singleton logger. The first call initializes it with the
// provided level; subsequent calls ignore the argument.
func Get(level string) *Logger {
	once.Do(func() {
		globalLogger = newZapLogger(level)
	})
	return globalLogger
}
