// Package enginelog is the engine's structured logger, shaped after
// go-probeum's log package: package-level Info/Warn/Error/Debug/Crit
// functions that take a message followed by alternating key/value
// pairs, rather than a printf-style format string. It is built on
// log/slog instead of reimplementing log15, since slog already gives
// every handler (text, JSON, or a host's own) the same structured
// record without this engine needing to vendor its own formatter.
package enginelog

import (
	"context"
	"log/slog"
	"os"
)

var root = slog.New(slog.NewTextHandler(os.Stderr, nil))

// SetHandler replaces the handler every package-level log call writes
// through, letting a host embedding the engine redirect logs into its
// own structured sink (JSON over a socket, a ring buffer, etc.).
func SetHandler(h slog.Handler) {
	root = slog.New(h)
}

// New returns a logger scoped with the given key/value pairs attached
// to every record it emits, mirroring log.New(ctx ...interface{}) in
// go-probeum's log package.
func New(kv ...interface{}) *slog.Logger {
	return root.With(kv...)
}

// Debug logs at debug level: msg followed by alternating key/value
// pairs, e.g. Debug("step", "pos", p.Pos, "op", ins.Op).
func Debug(msg string, kv ...interface{}) { root.Debug(msg, kv...) }

// Info logs at info level.
func Info(msg string, kv ...interface{}) { root.Info(msg, kv...) }

// Warn logs at warn level.
func Warn(msg string, kv ...interface{}) { root.Warn(msg, kv...) }

// Error logs at error level.
func Error(msg string, kv ...interface{}) { root.Error(msg, kv...) }

// Crit logs at error level and then exits the process, matching
// go-probeum's log.Crit — reserved for startup failures a host cannot
// recover from (a malformed config file, an unreadable bytecode
// artifact passed on the command line).
func Crit(msg string, kv ...interface{}) {
	root.Log(context.Background(), slog.LevelError, msg, kv...)
	os.Exit(1)
}
