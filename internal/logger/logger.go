// Package logger provides a configured zerolog logger.
package logger

import (
	"io"
	"os"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	zpkgerrors "github.com/rs/zerolog/pkgerrors"
)

type stackTracer interface{ StackTrace() pkgerrors.StackTrace }

func init() {
	// Marshal pkg/errors stacks when present, and attach one to plain
	// errors when an event asks for .Stack().
	zerolog.ErrorStackMarshaler = func(err error) interface{} {
		if _, ok := err.(stackTracer); !ok {
			err = pkgerrors.WithStack(err)
		}
		return zpkgerrors.MarshalStack(err)
	}
}

// New returns a logger for the named service writing JSON to stdout.
func New(serviceName string) zerolog.Logger {
	return NewWithWriter(serviceName, os.Stdout, zerolog.InfoLevel)
}

// NewWithWriter returns a logger for the named service writing JSON to w.
// The CLI passes stderr so stdout stays clean for command output.
func NewWithWriter(serviceName string, w io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(w).Level(level).With().
		Str("service", serviceName).
		Timestamp().
		Logger()
}

// Nop returns a logger that discards everything.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
