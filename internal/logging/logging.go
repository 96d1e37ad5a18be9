package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	gormlogger "gorm.io/gorm/logger"
)

// Setup configures the global zerolog logger. Format "console" writes human-readable
// lines to stderr; anything else writes JSON to stdout.
func Setup(level, format string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	var out io.Writer = os.Stdout
	if format == "console" {
		out = zerolog.ConsoleWriter{Out: os.Stderr}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Str("service", "monitord").Logger()
	return lvl
}

// GormLevel maps the zerolog level onto gorm's logger levels.
func GormLevel(lvl zerolog.Level) gormlogger.LogLevel {
	switch {
	case lvl <= zerolog.DebugLevel:
		return gormlogger.Info
	case lvl <= zerolog.WarnLevel:
		return gormlogger.Warn
	case lvl < zerolog.Disabled:
		return gormlogger.Error
	default:
		return gormlogger.Silent
	}
}
