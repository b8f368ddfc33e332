// Package logger provides leveled structured logging.
package logger

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

var defaultLogger = zerolog.Nop()

// Init initializes the default logger with the specified level and format.
// Format "json" emits JSON lines; "text" emits a human-readable console form.
func Init(level string, format string) {
	var l zerolog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = zerolog.DebugLevel
	case "info":
		l = zerolog.InfoLevel
	case "warn":
		l = zerolog.WarnLevel
	case "error":
		l = zerolog.ErrorLevel
	default:
		l = zerolog.InfoLevel
	}

	var out zerolog.Logger
	if strings.ToLower(format) == "text" {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"})
	} else {
		out = zerolog.New(os.Stderr)
	}
	defaultLogger = out.Level(l).With().Timestamp().Logger()
}

func Debug(format string, args ...interface{}) {
	defaultLogger.Debug().Msg(fmt.Sprintf(format, args...))
}

func Info(format string, args ...interface{}) {
	defaultLogger.Info().Msg(fmt.Sprintf(format, args...))
}

func Warn(format string, args ...interface{}) {
	defaultLogger.Warn().Msg(fmt.Sprintf(format, args...))
}

func Error(format string, args ...interface{}) {
	defaultLogger.Error().Msg(fmt.Sprintf(format, args...))
}

func Fatal(format string, args ...interface{}) {
	defaultLogger.Error().Msg(fmt.Sprintf(format, args...))
	os.Exit(1)
}
