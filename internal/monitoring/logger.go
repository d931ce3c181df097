// Package monitoring holds the shared diagnostic logger used across the
// capture pipeline. Components log operational events through the standard
// log package; higher-volume diagnostics go through Logf so tests and
// embedding programs can redirect or mute them.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// debug gates Debugf output. Off by default.
var debug bool

// SetDebug enables or disables Debugf output.
func SetDebug(v bool) { debug = v }

// Debugf logs through Logf only when debug output has been enabled. Used for
// per-frame decision traces that would otherwise swamp the log.
func Debugf(format string, v ...interface{}) {
	if debug {
		Logf(format, v...)
	}
}
