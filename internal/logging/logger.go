// Package logging provides structured logging with zerolog. Output goes to a
// rotated file because the terminal belongs to the UI.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Config holds logging configuration.
type Config struct {
	Level      string // debug, info, warn, error
	Path       string // empty discards all output
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// DefaultConfig returns the default logging configuration for path.
func DefaultConfig(path string) Config {
	return Config{
		Level:      "info",
		Path:       path,
		MaxSizeMB:  10,
		MaxBackups: 3,
		MaxAgeDays: 28,
	}
}

// Init installs the global zerolog logger and returns a closer for the log
// file.
func Init(cfg Config) (io.Closer, error) {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Path == "" {
		log.Logger = zerolog.Nop()
		return io.NopCloser(nil), nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	file := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}

	log.Logger = zerolog.New(file).
		With().
		Timestamp().
		Str("service", "debate").
		Logger()

	return file, nil
}

// WithComponent returns a logger with a component tag.
func WithComponent(component string) zerolog.Logger {
	return log.With().
		Str("component", component).
		Logger()
}

// WithVoiceSession returns a logger tagged with a voice session and room.
func WithVoiceSession(sessionID, room string) zerolog.Logger {
	return log.With().
		Str("component", "voice").
		Str("sessionId", sessionID).
		Str("room", room).
		Logger()
}
