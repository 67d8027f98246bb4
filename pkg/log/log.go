// Package log provides the logging facade used across the module. It is a
// thin wrapper over logrus so that callers depend on a small interface
// instead of a concrete logging library.
package log

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the facade every subsystem logs through.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type logger struct {
	*logrus.Entry
}

// New returns a Logger tagged with the given subsystem name, logging at
// debug level to stderr with a plain text formatter.
func New(subsystem string) Logger {
	l := logrus.New()
	l.Out = os.Stderr
	l.SetLevel(logrus.DebugLevel)
	l.Formatter = &logrus.TextFormatter{
		DisableColors:    true,
		DisableTimestamp: true,
		DisableSorting:   true,
		DisableQuote:     true,
	}
	return &logger{l.WithField("subsystem", subsystem)}
}

func (l *logger) Debugf(format string, args ...interface{}) { l.Entry.Debugf(format, args...) }
func (l *logger) Infof(format string, args ...interface{})  { l.Entry.Infof(format, args...) }
func (l *logger) Warnf(format string, args ...interface{})  { l.Entry.Warnf(format, args...) }
func (l *logger) Errorf(format string, args ...interface{}) { l.Entry.Errorf(format, args...) }

// nullLogger discards everything. Used in tests that don't want log noise.
type nullLogger struct{}

// NewNull returns a Logger that discards every message.
func NewNull() Logger { return nullLogger{} }

func (nullLogger) Debugf(string, ...interface{}) {}
func (nullLogger) Infof(string, ...interface{})  {}
func (nullLogger) Warnf(string, ...interface{})  {}
func (nullLogger) Errorf(string, ...interface{}) {}
