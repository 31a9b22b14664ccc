// Package monitoring holds the process-wide diagnostic loggers.
package monitoring

import "log"

// Logf is the package-level diagnostic logger for routine messages. It
// defaults to log.Printf and is replaced by SetLogger or Configure.
var Logf func(format string, v ...interface{}) = log.Printf

// Debugf logs detail that is only wanted when tracing a capture.
var Debugf func(format string, v ...interface{}) = func(string, ...interface{}) {}

// Warnf logs lost data and failed side effects.
var Warnf func(format string, v ...interface{}) = log.Printf

// Loggers is the set of hooks, one per severity.
type Loggers struct {
	Debugf func(format string, v ...interface{})
	Infof  func(format string, v ...interface{})
	Warnf  func(format string, v ...interface{})
}

// Current returns the installed hooks.
func Current() Loggers {
	return Loggers{Debugf: Debugf, Infof: Logf, Warnf: Warnf}
}

// SetLoggers installs l. A nil hook mutes that severity.
func SetLoggers(l Loggers) {
	Debugf = orNop(l.Debugf)
	Logf = orNop(l.Infof)
	Warnf = orNop(l.Warnf)
}

// SetLogger routes every severity to f. Passing nil mutes them all.
func SetLogger(f func(format string, v ...interface{})) {
	SetLoggers(Loggers{Debugf: f, Infof: f, Warnf: f})
}

func orNop(f func(string, ...interface{})) func(string, ...interface{}) {
	if f == nil {
		return func(string, ...interface{}) {}
	}
	return f
}
