// Package util provides low-level helpers shared by all other packages.
package util

import (
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// SetupLogging configures the process-wide logger.
//
// Repeating -v raises the level: 0 info, 1 debug, 2+ trace; quiet
// drops to warnings only. When file is non-empty, output rotates
// through it instead of going to stderr. The bridge never writes
// payload data to stdout or stderr, so logging is unrestricted.
func SetupLogging(verbosity int, quiet bool, file string, maxSizeMiB, maxBackups int) {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})
	log.SetLevel(levelFor(verbosity, quiet))

	var out io.Writer = os.Stderr
	if file != "" {
		out = &lumberjack.Logger{
			Filename:   file,
			MaxSize:    maxSizeMiB,
			MaxBackups: maxBackups,
			Compress:   true,
		}
	}
	log.SetOutput(out)
}

func levelFor(verbosity int, quiet bool) log.Level {
	switch {
	case quiet:
		return log.WarnLevel
	case verbosity <= 0:
		return log.InfoLevel
	case verbosity == 1:
		return log.DebugLevel
	default:
		return log.TraceLevel
	}
}
