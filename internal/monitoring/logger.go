package monitoring

import (
	"log"
	"os"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// Debugf emits verbose per-frame diagnostics. It is a no-op unless the
// OCCUPANCY_DEBUG environment variable is set at process start.
var Debugf func(format string, v ...interface{}) = func(string, ...interface{}) {}

func init() {
	if os.Getenv("OCCUPANCY_DEBUG") != "" {
		Debugf = func(format string, v ...interface{}) { Logf(format, v...) }
	}
}

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
