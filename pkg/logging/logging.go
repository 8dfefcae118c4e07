// Package logging configures the process-wide zerolog logger and hands out
// per-component child loggers.
package logging

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

var (
	lock   sync.RWMutex
	logger = newLogger(nil, zerolog.InfoLevel)
)

func newLogger(w io.Writer, lvl zerolog.Level) zerolog.Logger {
	if w == nil {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.StampMilli}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// Setup replaces the root logger. An empty level leaves it at info. If w is
// nil the logger writes human-readable lines to stderr.
func Setup(level string, w io.Writer) error {
	lvl := zerolog.InfoLevel
	if level != "" {
		var err error
		lvl, err = zerolog.ParseLevel(level)
		if err != nil {
			return errors.Wrapf(err, "parsing log level %q", level)
		}
	}
	lock.Lock()
	defer lock.Unlock()
	logger = newLogger(w, lvl)
	return nil
}

// Root returns the current root logger.
func Root() zerolog.Logger {
	lock.RLock()
	defer lock.RUnlock()
	return logger
}

// Component returns a child of the root logger tagged with the component
// name.
func Component(name string) zerolog.Logger {
	return Root().With().Str("component", name).Logger()
}

// Sampled wraps l so that high-rate loops log a short burst and then only
// every hundredth event.
func Sampled(l zerolog.Logger) zerolog.Logger {
	return l.Sample(&zerolog.BurstSampler{
		Burst:       5,
		Period:      time.Second,
		NextSampler: &zerolog.BasicSampler{N: 100},
	})
}
