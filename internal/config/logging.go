package config

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SetupLogging applies LOG_LEVEL to the global zerolog logger and returns it.
// An unknown level falls back to info.
func SetupLogging(level string) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	return log.Logger
}
