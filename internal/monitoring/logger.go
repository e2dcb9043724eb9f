package monitoring

import (
	"log"
	"time"
)

// Logf is the package-level diagnostic logger used by the segmentation engine
// and its tooling. It defaults to log.Printf but may be replaced by SetLogger.
// Tests or batch jobs can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Timed returns a func that logs the time elapsed since Timed was called.
// Typical use:
//
//	defer monitoring.Timed("decode")()
func Timed(label string) func() {
	start := time.Now()
	return func() {
		Logf("[%s] done in %v", label, time.Since(start).Round(time.Microsecond))
	}
}
