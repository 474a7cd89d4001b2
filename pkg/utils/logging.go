package utils

import (
	"log"
	"strings"
	"sync/atomic"
)

var debugEnabled atomic.Bool

// SetLogLevel enables Debugf output for "debug"
func SetLogLevel(level string) {
	debugEnabled.Store(strings.EqualFold(level, "debug"))
}

// Debugf logs only at debug level
func Debugf(format string, args ...any) {
	if debugEnabled.Load() {
		log.Printf("[DEBUG] "+format, args...)
	}
}
