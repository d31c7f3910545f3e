package logging

import (
	"github.com/go-logr/logr"
)

// Verbosity levels mapped onto logr's V() scale.
const (
	LEVEL_INFO  = 0
	LEVEL_DEBUG = 1
	LEVEL_TRACE = 2
)

// Logger wraps a logr.Logger behind the small surface the library needs.
type Logger struct {
	log logr.Logger
}

// NewLogger wraps the given logr.Logger. A logger without a sink degrades to
// a discarding one.
func NewLogger(log logr.Logger) *Logger {
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	return &Logger{log: log}
}

// DefaultLogger returns a logger that discards everything.
func DefaultLogger() *Logger {
	return &Logger{log: logr.Discard()}
}

func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Info(msg, keysAndValues...)
}

// Warn logs at info verbosity with a warning marker. Layout conflicts and
// capacity overruns are reported here: they do not abort a build.
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Info("warning: "+msg, keysAndValues...)
}

func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.V(LEVEL_DEBUG).Info(msg, keysAndValues...)
}

func (l *Logger) Trace(msg string, keysAndValues ...interface{}) {
	l.log.V(LEVEL_TRACE).Info(msg, keysAndValues...)
}

func (l *Logger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(err, msg, keysAndValues...)
}
