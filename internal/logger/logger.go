// Package logger builds the zerolog.Logger used across the cipher engine,
// DTM-KEX state machine, and session transport. It follows the console +
// optional rolling file writer shape used by the rest of this dependency
// stack, trimmed down for library use (no management-log sink, no CLI
// flag binding).
package logger

import (
	"io"
	"os"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/rs/zerolog"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

const consoleTimeFormat = time.RFC3339

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.TimestampFunc = func() time.Time { return time.Now().UTC() }
}

// Config selects the sinks and minimum level for a logger.
type Config struct {
	// MinLevel is a zerolog level name, e.g. "info", "debug". Empty defaults to "info".
	MinLevel string
	// DisableConsole suppresses the stderr console writer.
	DisableConsole bool
	// RollingFile, if set, additionally writes to a size-rotated log file.
	RollingFile *RollingFileConfig
}

// RollingFileConfig configures the lumberjack-backed rotating file sink.
type RollingFileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New builds a *zerolog.Logger from cfg. A nil cfg yields an info-level
// console-only logger.
func New(cfg *Config) *zerolog.Logger {
	if cfg == nil {
		cfg = &Config{MinLevel: "info"}
	}

	var writers []io.Writer
	if !cfg.DisableConsole {
		writers = append(writers, consoleWriter())
	}
	if cfg.RollingFile != nil {
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.RollingFile.Path,
			MaxSize:    nonZero(cfg.RollingFile.MaxSizeMB, 100),
			MaxBackups: cfg.RollingFile.MaxBackups,
			MaxAge:     cfg.RollingFile.MaxAgeDays,
		})
	}

	level, err := zerolog.ParseLevel(cfg.MinLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	log := zerolog.New(zerolog.MultiLevelWriter(writers...)).Level(level).With().Timestamp().Logger()
	if err != nil && cfg.MinLevel != "" {
		log.Warn().Str("requested", cfg.MinLevel).Msg("unrecognized log level, defaulting to info")
	}
	return &log
}

func consoleWriter() io.Writer {
	out := os.Stderr
	return zerolog.ConsoleWriter{
		Out:        colorable.NewColorable(out),
		NoColor:    !term.IsTerminal(int(out.Fd())),
		TimeFormat: consoleTimeFormat,
	}
}

func nonZero(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}

// Nop returns a logger that discards all output, used in tests.
func Nop() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}
