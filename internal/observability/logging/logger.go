// Package logging provides structured logging with zerolog.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logging configuration.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	TimeFormat string // RFC3339, Unix, etc.
}

// DefaultConfig returns sensible default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "json",
		TimeFormat: time.RFC3339,
	}
}

// Init initializes the global zerolog logger.
func Init(cfg Config) {
	zerolog.TimeFieldFormat = cfg.TimeFormat

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var output io.Writer = os.Stdout
	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.Kitchen,
		}
	}

	log.Logger = zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Logger()
}

// WithComponent returns a logger with a component tag.
func WithComponent(component string) zerolog.Logger {
	return log.With().
		Str("component", component).
		Logger()
}

// WithJob returns a logger with job context.
func WithJob(component, jobID string) zerolog.Logger {
	return log.With().
		Str("component", component).
		Str("jobId", jobID).
		Logger()
}

// WithSegment returns a logger with segment context.
func WithSegment(component, jobID string, segmentID int) zerolog.Logger {
	return log.With().
		Str("component", component).
		Str("jobId", jobID).
		Int("segmentId", segmentID).
		Logger()
}

// WithBackend returns a logger tagged with the STT backend in use.
func WithBackend(jobID string, segmentID int, backend, model string) zerolog.Logger {
	return WithSegment("transcription", jobID, segmentID).With().
		Str("sttBackend", backend).
		Str("model", model).
		Logger()
}
