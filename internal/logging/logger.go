// Package logging wires the application's structured logger.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

var (
	mu      sync.RWMutex
	base    zerolog.Logger
	initted bool
)

// Config controls how the base logger is constructed.
type Config struct {
	Level       string // debug, info, warn, error
	JSONFormat  bool
	IncludeFile bool
	Output      io.Writer // defaults to os.Stdout when nil
}

// Init configures the package-level base logger. Safe to call once at startup.
func Init(cfg Config) {
	mu.Lock()
	defer mu.Unlock()

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	var writer io.Writer = out
	if !cfg.JSONFormat {
		writer = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	l := zerolog.New(writer).Level(lvl).With().Timestamp()
	if cfg.IncludeFile {
		l = l.Caller()
	}

	base = l.Logger()
	initted = true
}

// Default returns the base logger, initializing a sane fallback if Init was
// never called (e.g. in tests that construct a component directly).
func Default() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if !initted {
		return zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	return base
}

// Component returns a child logger tagged with the given component name,
// mirroring the teacher's per-package logger-with-fields idiom.
func Component(name string) zerolog.Logger {
	return Default().With().Str("component", name).Logger()
}
