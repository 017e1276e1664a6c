// Package logging builds the process logger.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls logger output.
type Options struct {
	Environment string
	Level       string
	File        string
	MaxSizeMB   int
	MaxBackups  int
}

// Setup configures zerolog for the process. Development gets a console
// writer at debug level; production writes JSON at info level. When File is
// set, JSON lines are also written to a rotating file.
func Setup(opts Options) zerolog.Logger {
	return SetupWithWriter(opts, os.Stdout)
}

// SetupWithWriter is Setup with an explicit primary writer.
func SetupWithWriter(opts Options, out io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level := zerolog.InfoLevel
	if opts.Environment == "development" {
		level = zerolog.DebugLevel
	}
	if opts.Level != "" {
		if parsed, err := zerolog.ParseLevel(opts.Level); err == nil {
			level = parsed
		}
	}

	var writer io.Writer = out
	if opts.Environment == "development" {
		writer = zerolog.ConsoleWriter{Out: out}
	}
	if opts.File != "" {
		writer = zerolog.MultiLevelWriter(writer, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			Compress:   true,
		})
	}

	logger := zerolog.New(writer).With().Timestamp().Logger().Level(level)
	log.Logger = logger
	return logger
}
