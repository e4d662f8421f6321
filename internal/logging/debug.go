// Package logging provides the daemon's debug-output helpers.
//
// The call shape (DebugPrint/DebugError/DebugPanic, gated by DEBUG_MODE)
// mirrors the teacher's shared/debug.go; the backend is a zerolog.Logger
// instead of log.Printf so caller file/line comes from zerolog's own
// .Caller() hook rather than hand-rolled runtime.Caller bookkeeping.
package logging

import (
	"os"

	"github.com/rs/zerolog"
)

// DEBUG_MODE gates verbose output across the daemon. Set once at startup
// by cmd/daybreakd from the loaded Config; not safe to flip concurrently
// with logging calls.
var DEBUG_MODE = false

var logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
	With().Timestamp().Caller().Logger()

// DebugPrint emits a debug-level message when DEBUG_MODE is set. No-op otherwise.
func DebugPrint(format string, args ...interface{}) {
	if !DEBUG_MODE {
		return
	}
	logger.Debug().CallerSkipFrame(1).Msgf(format, args...)
}

// DebugError logs an error with caller context. Always emitted, regardless
// of DEBUG_MODE, at a reduced level when debug is off.
func DebugError(err error) {
	if err == nil {
		return
	}
	ev := logger.Error()
	if !DEBUG_MODE {
		ev = logger.Warn()
	}
	ev.CallerSkipFrame(1).Err(err).Msg("")
}

// DebugPanic logs at panic severity. Outside DEBUG_MODE this degrades to a
// logged error instead of crashing the daemon — a malformed client or a
// flaky remote must never bring the bridge down.
func DebugPanic(format string, args ...interface{}) {
	if !DEBUG_MODE {
		logger.Error().CallerSkipFrame(1).Msgf("would-panic: "+format, args...)
		return
	}
	logger.Panic().CallerSkipFrame(1).Msgf(format, args...)
}
