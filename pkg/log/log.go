// Package log wires up the structured logger shared by every pipeline
// component. Components never construct their own *logrus.Entry; they
// receive the one NewLogger builds, which carries the build version on
// every line.
package log

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Options carries the fields NewLogger needs out of the pipeline
// configuration, without pulling in a dependency on the config package.
type Options struct {
	Verbose bool
	LogFile string
	Version string
}

// NewLogger returns a new logger. With a log file configured it writes
// level-tagged JSON lines there (tail -f build.log | humanlog); otherwise it
// discards all output, errors included, since stdout is reserved for the
// progress callback's own rendering.
func NewLogger(opts Options) *logrus.Entry {
	var base *logrus.Logger
	if opts.LogFile != "" {
		base = newFileLogger(opts)
	} else {
		base = newQuietLogger()
	}
	base.Formatter = &logrus.JSONFormatter{}

	return base.WithFields(logrus.Fields{
		"version": opts.Version,
	})
}

func getLogLevel(verbose bool) logrus.Level {
	if strLevel := os.Getenv("MNEMONIC_LOG_LEVEL"); strLevel != "" {
		if level, err := logrus.ParseLevel(strLevel); err == nil {
			return level
		}
	}
	if verbose {
		return logrus.DebugLevel
	}
	return logrus.InfoLevel
}

func newFileLogger(opts Options) *logrus.Logger {
	l := logrus.New()
	l.SetLevel(getLogLevel(opts.Verbose))
	file, err := os.OpenFile(opts.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
	if err != nil {
		// fall back to stderr rather than aborting the whole run over a
		// logging sink we couldn't open.
		l.SetOutput(os.Stderr)
		l.Warnf("unable to open log file %s, logging to stderr: %v", opts.LogFile, err)
		return l
	}
	l.SetOutput(file)
	return l
}

func newQuietLogger() *logrus.Logger {
	l := logrus.New()
	l.Out = io.Discard
	l.SetLevel(logrus.ErrorLevel)
	return l
}
