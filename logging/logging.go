// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Until Setup runs, the global logger stays at Info.
func init() {
	log.Logger = log.Logger.Level(zerolog.InfoLevel)
}

// Setup installs the global logger. debug lowers the level to Debug;
// pretty switches to the human-readable console writer.
func Setup(debug, pretty bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}

	var out io.Writer = os.Stderr
	if pretty {
		out = zerolog.ConsoleWriter{Out: os.Stderr}
	}

	// add file and line number to log
	log.Logger = zerolog.New(out).With().Timestamp().Caller().Logger().Level(level)
}

// Component returns a child of the global logger tagged with name.
func Component(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
