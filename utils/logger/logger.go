// Package logger builds the logrus logger shared by the command line tools.
package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// New returns a text logger writing to w at the given level. An unknown
// level falls back to info.
func New(w io.Writer, level string) *logrus.Logger {
	if w == nil {
		w = os.Stderr
	}
	log := logrus.New()
	log.SetOutput(w)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log
}

// Discard is a logger that drops everything, used as the default of library
// components.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// Or returns l, or a discarding logger when l is nil.
func Or(l logrus.FieldLogger) logrus.FieldLogger {
	if l == nil {
		return Discard()
	}
	return l
}
