package infra

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the logger type passed between packages.
type Logger = zerolog.Logger

// NewLogger returns the process logger tagged with service. Development gets
// human readable console output at debug; other environments get JSON at info.
// LOG_LEVEL overrides the level in every environment.
func NewLogger(appEnv, service string) zerolog.Logger {
	return newLogger(os.Stdout, appEnv, service, os.Getenv("LOG_LEVEL"))
}

func newLogger(out io.Writer, appEnv, service, levelName string) zerolog.Logger {
	dev := appEnv == "development"
	level := zerolog.InfoLevel
	if dev {
		level = zerolog.DebugLevel
	}
	if lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(levelName))); err == nil && levelName != "" {
		level = lvl
	}
	if dev {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	ctx := zerolog.New(out).Level(level).With().Timestamp()
	if service != "" {
		ctx = ctx.Str("service", service)
	}
	if appEnv != "" {
		ctx = ctx.Str("env", appEnv)
	}
	return ctx.Logger()
}
