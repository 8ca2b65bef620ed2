package stipple

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler keeps the library quiet until SetLogger is called. Enabled
// reports false, so the per-iteration Debug record in Engine.Step is never
// built.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger sets the logger used by engines and backends.
// Pass nil to silence them again.
//
// Engines read the logger once, in NewEngine. The registered backend
// receives it immediately if it has a SetLogger(*slog.Logger) method; the
// GPU cone backend does. A backend registered later receives the logger
// current at RegisterBackend time.
//
// Levels:
//   - [slog.LevelDebug]: one record per iteration (sigma, delta, mass), GPU buffer sizes
//   - [slog.LevelInfo]: engine created, seeded, converged or capped, backend registered
//   - [slog.LevelWarn]: registered backend skipped for the software fallback
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)

	if b := Backend(); b != nil {
		propagateLogger(b, l)
	}
}

// Logger returns the logger set by SetLogger. The GPU backend package
// does not import it; it is handed the logger through SetLogger instead.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// loggerSetter is the optional backend method SetLogger looks for.
type loggerSetter interface {
	SetLogger(*slog.Logger)
}

func propagateLogger(b VoronoiBackend, l *slog.Logger) {
	if ls, ok := b.(loggerSetter); ok {
		ls.SetLogger(l)
	}
}
