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

	// LevelDisabled turns logging off, e.g. LOG_LEVEL=disabled for
	// cmd/fetch when stderr should carry nothing but errors.
	LevelDisabled LogLevel = "disabled"
)

// Valid reports whether l names a known level. Matching is
// case-insensitive and "warning" is accepted for warn.
func (l LogLevel) Valid() bool {
	switch strings.ToLower(string(l)) {
	case "debug", "info", "warn", "warning", "error", "disabled":
		return true
	default:
		return false
	}
}

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
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
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
	case "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Cache operations (hit/miss, key, TTL)
//   - Pool operations (reuse, dead idle connection, displacement)
//   - Redirect hops and stale connection retries
//
// Info: Normal operation events
//   - Completed fetches
//   - Server startup/shutdown
//
// Warn: Warning conditions that don't prevent operation
//   - Truncated bodies returned as partial content
//   - Cache backend errors (treated as a miss)
//   - Local reads rendered as error pages
//
// Error: Error conditions requiring attention
//   - Failed fetches (malformed locator, transport, protocol, redirect limit)
//   - Configuration errors
//
// Context Fields:
//   - component: emitting package (pool, cache, transport, fetch-client, ...)
//   - locator: full locator of the hop
//   - origin: scheme://host:port of a connection
//   - status: HTTP status code
//   - hops: redirect hops followed so far
//   - from_cache: whether the body came from the response cache
//   - ttl: cache entry freshness
