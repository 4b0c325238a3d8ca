package common

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler discards every record. Enabled reports false so callers skip formatting.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// LevelTrace is one step below debug and is used for per-frame timing chatter.
const LevelTrace = slog.LevelDebug - 4

var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(slog.New(nopHandler{}))
}

// SetLogger installs the logger shared by every runtime package.
// Passing nil restores the silent default.
//
// Parameters:
//   - l: the logger to install, or nil to disable logging
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	loggerPtr.Store(l)
}

// Logger returns the active runtime logger. Safe for concurrent use.
//
// Returns:
//   - *slog.Logger: the current logger
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// ComponentLogger returns the active logger tagged with a component attribute,
// e.g. ComponentLogger("pacer") logs with component=pacer.
//
// Parameters:
//   - name: the component name attached to every record
//
// Returns:
//   - *slog.Logger: the tagged logger
func ComponentLogger(name string) *slog.Logger {
	return Logger().With("component", name)
}

// DiscardHandler returns a handler that drops all records.
//
// Returns:
//   - slog.Handler: the discarding handler
func DiscardHandler() slog.Handler {
	return nopHandler{}
}
