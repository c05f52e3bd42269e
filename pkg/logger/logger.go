package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	zerologadapter "logur.dev/adapter/zerolog"
)

type (
	// Logger defines the interface for a logger.
	Logger interface {
		Trace(msg string, fields ...map[string]interface{})
		Debug(msg string, fields ...map[string]interface{})
		Info(msg string, fields ...map[string]interface{})
		Warn(msg string, fields ...map[string]interface{})
		Error(msg string, fields ...map[string]interface{})
	}

	Options struct {
		Pretty bool

		// Level is one of trace, debug, info, warn or error. Empty means info.
		Level string

		// Output defaults to stderr.
		Output io.Writer
	}
)

// New returns a zerolog backed Logger. An unknown Level falls back to info.
func New(opts *Options) Logger {
	if opts == nil {
		opts = &Options{}
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	var writer io.Writer
	if opts.Pretty {
		writer = zerolog.ConsoleWriter{Out: out}
	} else {
		writer = out
	}

	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	return zerologadapter.New(zerolog.New(writer).Level(level).With().Timestamp().Logger())
}

func NoOp() Logger {
	return zerologadapter.New(zerolog.Nop())
}
