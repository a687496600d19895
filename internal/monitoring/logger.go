// Package monitoring holds the diagnostic logger shared by the library
// packages. Binaries log through the standard log package directly.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf and
// may be replaced by SetLogger; tests usually mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// RunLogf returns a logger that prefixes every line with the run ID so the
// interleaved output of consecutive runs can be told apart.
func RunLogf(runID string) func(format string, v ...interface{}) {
	prefix := "[run " + runID + "] "
	return func(format string, v ...interface{}) {
		Logf(prefix+format, v...)
	}
}
