package monitor

import "github.com/aunum/log"

// Logger is the logging handle used throughout training. Components
// receive a Logger explicitly rather than writing to a process-global
// sink, so tests can capture output and callers can silence it.
type Logger interface {
	Infof(format string, args ...interface{})
	Warningf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// DefaultLogger returns a Logger backed by the aunum/log package
func DefaultLogger() Logger {
	return aunumLogger{}
}

type aunumLogger struct{}

func (aunumLogger) Infof(format string, args ...interface{}) {
	log.Infof(format, args...)
}

func (aunumLogger) Warningf(format string, args ...interface{}) {
	log.Warningf(format, args...)
}

func (aunumLogger) Errorf(format string, args ...interface{}) {
	log.Errorf(format, args...)
}

// Discard returns a Logger that drops everything it is given
func Discard() Logger {
	return discardLogger{}
}

type discardLogger struct{}

func (discardLogger) Infof(string, ...interface{})    {}
func (discardLogger) Warningf(string, ...interface{}) {}
func (discardLogger) Errorf(string, ...interface{})   {}
