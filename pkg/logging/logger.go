// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	// Set global log level
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	// Configure output
	var output io.Writer = cfg.Output
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: cfg.Output}
	}

	// Create logger with timestamp
	logger := zerolog.New(output).With().Timestamp().Logger()

	// Set as global logger
	log.Logger = logger

	return logger
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
// Components in use: "server", "retrieval", "store", "cache", "http".
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Cache lookups (word, status, backend)
//   - Store query shape (word, frame, limit, row count)
//   - Rounding and response assembly
//
// Info: Normal operation events
//   - Server startup/shutdown, bound address
//   - Selected cache backend and store driver
//   - Cache warm runs (word counts, duration)
//
// Warn: Warning conditions that don't prevent operation
//   - Cache backend unreachable (read-through continues)
//   - Cache write failures after a store fetch
//   - Pool acquisition fallback to direct connections
//   - Corrupted cache entries dropped
//
// Error: Error conditions requiring attention
//   - Store connection failures (request fails 503)
//   - Store query failures (request fails 500)
//   - Undecodable rows in the words table
//
// Context Fields:
//   - word: The requested word
//   - frame: Requested frame number (point queries)
//   - limit: Requested row cap (range queries)
//   - rows: Number of frames returned
//   - backend: Cache backend name (memory, redis)
//   - source: Where the response came from (cache, store)
//   - duration: Request duration
//   - ttl: Cache entry TTL
