// Package logging configures zerolog the way the teacher's
// cmd/proxy/main.go configureLogging does: a pretty console writer for
// interactive use, with the global level adjustable for verbose runs.
package logging

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Configure installs a console-writer zerolog.Logger as the global logger
// and sets the global level. verbose selects DebugLevel over InfoLevel.
func Configure(verbose bool) zerolog.Logger {
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: "15:04:05",
	})

	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	return log.Logger
}
