// Package zerolog configures the process-wide logger and provides
// sanitization for structured payloads before they reach a sink.
package zerolog

import (
	"context"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup initializes the global logger. The threshold is fixed at process
// start: production-like environments emit errors only and omit stack
// traces; every other environment honors the configured level.
func Setup(level, env string) {
	zerolog.TimeFieldFormat = time.RFC3339

	if isProductionLike(env) {
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
		zerolog.ErrorStackMarshaler = nil
	} else {
		zerolog.SetGlobalLevel(parseLevel(level))
		zerolog.ErrorStackMarshaler = func(err error) interface{} {
			return string(debug.Stack())
		}
	}

	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// FromContext returns the logger attached to ctx by the request middleware,
// falling back to the global logger.
func FromContext(ctx context.Context) *zerolog.Logger {
	return zerolog.Ctx(ctx)
}

func isProductionLike(env string) bool {
	switch strings.ToLower(env) {
	case "production", "prod":
		return true
	}
	return false
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "error":
		return zerolog.ErrorLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "info":
		return zerolog.InfoLevel
	case "debug":
		return zerolog.DebugLevel
	default:
		return zerolog.InfoLevel
	}
}
