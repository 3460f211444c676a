// Package logging builds the shared *logrus.Logger used by the Server and
// Client processes.
package logging

import (
	"github.com/sirupsen/logrus"
)

// New builds a logger at the given level ("debug", "info", "warn", "error")
// with the given format ("text" or "json"). An unrecognized level falls
// back to info; an unrecognized format falls back to text.
func New(level, format string) *logrus.Logger {
	log := logrus.New()

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)

	if format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return log
}
