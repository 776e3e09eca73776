// Package dbglog wraps the standard library's log.Logger the same way the
// teacher's audio_chip.go reaches for log.Printf: one thin, prefixable
// logger, no structured fields, no levels. spec.md §7 requires sticky
// errors and retry loops to be logged as they are cleared; this package is
// where every layer that does that sends its line.
package dbglog

import (
	"io"
	"log"
	"os"
)

// Logger is a *log.Logger with nil-safe methods, so a struct field left at
// its zero value silently discards instead of panicking.
type Logger struct {
	*log.Logger
}

// New builds a Logger writing to w with the given prefix. A nil w logs to
// os.Stderr.
func New(w io.Writer, prefix string) *Logger {
	if w == nil {
		w = os.Stderr
	}
	return &Logger{Logger: log.New(w, prefix, log.LstdFlags)}
}

// Discard is a Logger that drops everything, the default for components
// that haven't had SetLogger called on them (tests, library callers that
// don't want console noise).
var Discard = &Logger{Logger: log.New(io.Discard, "", 0)}

// Printf logs a formatted line; safe to call on a nil *Logger.
func (l *Logger) Printf(format string, args ...any) {
	if l == nil || l.Logger == nil {
		return
	}
	l.Logger.Printf(format, args...)
}

// StickyCleared logs the EDRCR.CSE/equivalent sticky-error-clear spec.md §7
// requires at the top of every DPM session.
func (l *Logger) StickyCleared(component string) {
	l.Printf("%s: sticky errors cleared", component)
}

// Retry logs one iteration of a bounded retry loop (DAP power-up, PrAcc
// handshake polling, and similar).
func (l *Logger) Retry(op string, attempt, max int) {
	l.Printf("%s: retry %d/%d", op, attempt, max)
}
