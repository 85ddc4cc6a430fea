package cmd

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/evstack/ev-derive/pkg/config"
)

// SetupLogger creates a zerolog logger writing to stderr.
//
// Configuration options:
//   - Output format (text or json)
//   - Log level (debug, info, warn, error)
//   - Caller information on every entry when Trace is set
func SetupLogger(cfg config.LogConfig) zerolog.Logger {
	return newLogger(os.Stderr, cfg)
}

func newLogger(w io.Writer, cfg config.LogConfig) zerolog.Logger {
	if !strings.EqualFold(cfg.Format, "json") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	logCtx := zerolog.New(w).Level(level).With().Timestamp()
	if cfg.Trace {
		logCtx = logCtx.Caller()
	}
	return logCtx.Logger()
}
