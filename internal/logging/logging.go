// Package logging gates verbose output on top of the standard logger.
package logging

import (
	"log"
	"sync/atomic"
)

var debug atomic.Bool

// SetDebug enables or disables debug output.
func SetDebug(enabled bool) {
	debug.Store(enabled)
}

// DebugEnabled reports whether debug output is on.
func DebugEnabled() bool {
	return debug.Load()
}

// Debugf logs through the standard logger when debug output is enabled.
func Debugf(format string, args ...any) {
	if debug.Load() {
		log.Printf("DEBUG: "+format, args...)
	}
}
