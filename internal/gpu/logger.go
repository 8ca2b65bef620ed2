//go:build !nogpu

package gpu

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// discard drops every record. It backs the logger until the cone backend
// is registered and stipple hands it the caller's logger.
type discard struct{}

func (discard) Enabled(context.Context, slog.Level) bool  { return false }
func (discard) Handle(context.Context, slog.Record) error { return nil }
func (discard) WithAttrs([]slog.Attr) slog.Handler        { return discard{} }
func (discard) WithGroup(string) slog.Handler             { return discard{} }

// coneLog is read on every pass; device setup and readback sizes go to it.
var coneLog atomic.Pointer[slog.Logger]

func init() {
	coneLog.Store(slog.New(discard{}))
}

func slogger() *slog.Logger { return coneLog.Load() }

// setLogger is the last hop of stipple.SetLogger: stipple stores the
// logger, finds the registered backend and calls ConeBackend.SetLogger,
// which lands here. RegisterBackend takes the same path with the logger
// current at registration time.
func setLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(discard{})
	}
	coneLog.Store(l)
}
