// Package logrus adapts a logrus entry to cachemaster.Logger.
package logrus

import (
	"github.com/goforj/cachemaster"
	"github.com/sirupsen/logrus"
)

var _ cachemaster.Logger = Logger{}

type Logger struct{ E *logrus.Entry }

// New wraps a logrus logger.
func New(l *logrus.Logger) Logger { return Logger{E: logrus.NewEntry(l)} }

func (l Logger) Debug(msg string, f cachemaster.Fields) {
	l.E.WithFields(logrus.Fields(f)).Debug(msg)
}
func (l Logger) Info(msg string, f cachemaster.Fields) { l.E.WithFields(logrus.Fields(f)).Info(msg) }
func (l Logger) Warn(msg string, f cachemaster.Fields) { l.E.WithFields(logrus.Fields(f)).Warn(msg) }
func (l Logger) Error(msg string, f cachemaster.Fields) {
	l.E.WithFields(logrus.Fields(f)).Error(msg)
}
