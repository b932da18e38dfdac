// Package logger configures the process-wide zerolog logger.
package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds the configuration for the logger.
type Config struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	JSONFormat bool   `mapstructure:"json_format"`
}

// Setup configures the global logger. Console output always goes to
// stderr; when File is set, records are also appended there.
func Setup(cfg Config) error {
	return SetupWriter(cfg, os.Stderr)
}

// SetupWriter is Setup with an explicit console destination.
func SetupWriter(cfg Config, console io.Writer) error {
	writers := []io.Writer{
		zerolog.ConsoleWriter{Out: console, TimeFormat: time.TimeOnly},
	}

	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("logger: open log file: %w", err)
		}
		if cfg.JSONFormat {
			writers = append(writers, f)
		} else {
			writers = append(writers, zerolog.ConsoleWriter{Out: f, TimeFormat: time.RFC3339, NoColor: true})
		}
	}

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()
	SetLevel(cfg.Level)
	return nil
}

// SetLevel sets the global logging level, falling back to info for
// unknown names.
func SetLevel(level string) {
	if level == "" {
		level = "info"
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		log.Warn().Msgf("unknown log level %q, defaulting to info", level)
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
