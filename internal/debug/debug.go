// Package debug holds a process-wide trace-level toggle, consulted by
// hot paths (per-coarse-chunk emission, per-duplicate resolution) that
// would otherwise pay logging's formatting cost even when nothing reads it.
package debug

import (
	"os"
	"sync"
)

var (
	enabled bool
	mu      sync.RWMutex
)

func init() {
	// Initialize from environment variables on package load so debug
	// tracing works in tests that never go through cmd/dedupstream.
	InitFromEnv()
}

// Enabled reports whether hot-path tracing is on.
func Enabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled
}

// SetEnabled turns hot-path tracing on or off.
func SetEnabled(value bool) {
	mu.Lock()
	defer mu.Unlock()
	enabled = value
}

// InitFromEnv initializes tracing from DEDUPSTREAM_DEBUG=true or
// LOG_LEVEL=debug.
func InitFromEnv() {
	if os.Getenv("DEDUPSTREAM_DEBUG") == "true" {
		SetEnabled(true)
		return
	}
	if os.Getenv("LOG_LEVEL") == "debug" {
		SetEnabled(true)
		return
	}
	SetEnabled(false)
}

// InitFromLogLevel initializes tracing from a log level string parsed
// out of config, but only when neither environment variable above is
// already set.
func InitFromLogLevel(logLevel string) {
	if os.Getenv("DEDUPSTREAM_DEBUG") == "" && os.Getenv("LOG_LEVEL") == "" {
		SetEnabled(logLevel == "debug")
	}
}
