// Package monitoring holds the diagnostic loggers shared by the sensor,
// transport and sink packages.
package monitoring

import (
	"io"
	"log"
	"sync/atomic"
)

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

var debugLogger atomic.Pointer[log.Logger]

// SetDebugWriter installs a writer that receives verbose per-frame
// diagnostics (every decoded reading, every cycle boundary). Pass nil to
// disable debug output.
func SetDebugWriter(w io.Writer) {
	if w == nil {
		debugLogger.Store(nil)
		return
	}
	debugLogger.Store(log.New(w, "debug ", log.LstdFlags|log.Lmicroseconds))
}

// Debugf logs when a debug writer is configured.
func Debugf(format string, v ...interface{}) {
	if l := debugLogger.Load(); l != nil {
		l.Printf(format, v...)
	}
}

// DebugEnabled reports whether Debugf output goes anywhere. Hot loops use it
// to skip formatting work.
func DebugEnabled() bool {
	return debugLogger.Load() != nil
}
