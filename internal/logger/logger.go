// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package logger holds the process-wide zerolog root logger.
package logger

import (
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Options configures the root logger.
type Options struct {
	Level  string
	Format string // "console" or "json"
	Writer io.Writer
}

// FromEnv reads WATCHCAT_LOG_LEVEL and WATCHCAT_LOG_FORMAT.
func FromEnv() Options {
	return Options{
		Level:  getenv("WATCHCAT_LOG_LEVEL", "info"),
		Format: getenv("WATCHCAT_LOG_FORMAT", "console"),
	}
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return strings.ToLower(v)
	}
	return def
}

// Logger is the project-wide logging type.
type Logger = zerolog.Logger

var root atomic.Pointer[zerolog.Logger]

// Get returns the root logger, initializing it from the environment on first
// use.
func Get() *Logger {
	if l := root.Load(); l != nil {
		return l
	}
	Init(FromEnv())
	return root.Load()
}

// Init builds the root logger. Calling it again replaces the root, which the
// CLI does once the config file has been read.
func Init(opt Options) {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var w io.Writer = os.Stderr
	if opt.Writer != nil {
		w = opt.Writer
	}
	if strings.ToLower(opt.Format) != "json" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	l := zerolog.New(w).Level(parseLevel(opt.Level)).With().Timestamp().Logger()
	root.Store(&l)
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// Named returns a child of the root logger with a component field.
func Named(component string) *Logger {
	if component == "" {
		return Get()
	}
	l := Get().With().Str("component", component).Logger()
	return &l
}
