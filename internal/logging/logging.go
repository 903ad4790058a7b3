// Package logging provides the configured zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	zpkgerrors "github.com/rs/zerolog/pkgerrors"
)

type Options struct {
	Service string
	Level   string
	Format  string
	Out     io.Writer
}

// New returns a logger writing to stderr by default so command output on
// stdout stays machine readable. Call sites should use .Stack() on internal
// faults to include stacks.
func New(opts Options) zerolog.Logger {
	zerolog.ErrorStackMarshaler = func(err error) interface{} {
		type stackTracer interface{ StackTrace() pkgerrors.StackTrace }
		if _, ok := err.(stackTracer); !ok {
			err = pkgerrors.WithStack(err)
		}
		return zpkgerrors.MarshalStack(err)
	}

	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	if strings.EqualFold(opts.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}
	level, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}
	service := opts.Service
	if service == "" {
		service = "meetcast"
	}
	return zerolog.New(out).Level(level).With().
		Str("service", service).
		Timestamp().
		Logger()
}
