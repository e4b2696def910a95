// Package logging configures the process-wide zerolog logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum level: debug, info, warn or error.
	Level string

	// Pretty enables human-readable console output instead of JSON.
	Pretty bool

	// Output receives log lines (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger and level. An unknown level
// falls back to info and is reported on the new logger.
func Setup(cfg Config) zerolog.Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	level, levelErr := ParseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: cfg.Output, TimeFormat: time.TimeOnly}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	if levelErr != nil {
		logger.Warn().Err(levelErr).Msg("Falling back to info level")
	}
	return logger
}

// ParseLevel converts a level name to a zerolog level. "warning" is
// accepted for warn; an empty name means info.
func ParseLevel(name string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "info":
		return zerolog.InfoLevel, nil
	case "debug":
		return zerolog.DebugLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("unknown log level %q", name)
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: request flow
//   - Each Ashby RPC issued and its error classification
//   - Pagination steps and cooldown waits
//
// Info: normal operation
//   - Server startup and shutdown, HTTP requests served
//   - Completed listings, enrichment runs, assemblies, bulk downloads
//
// Warn: degraded but continuing
//   - Retries after empty, invalid or failed responses
//   - 429 waits and shared cooldown updates
//   - Failed per-candidate lookups and skipped PDFs or archive entries
//   - Undeliverable progress events
//
// Error: the operation failed
//   - Retry attempts exhausted
//   - Pagination cursor cycles
//   - Handler failures returned as 5xx
//
// Context Fields:
//   - component: emitting package
//   - endpoint: Ashby RPC name (job.list, candidate.info, ...)
//   - attempt, error_class, wait, backoff: retry state
//   - run_id: one enrichment run
//   - request_id: one HTTP request
//   - job_id, stage_id: listing scope
