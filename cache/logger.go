package cache

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// LevelTrace is below slog.LevelDebug; it carries per-operation messages
// (VerboseDebug3).
const LevelTrace = slog.LevelDebug - 4

// SlogLevel maps a verbosity level to the minimum slog level it enables.
// ok is false for VerboseNone (logging disabled).
func SlogLevel(v VerboseLevel) (level slog.Level, ok bool) {
	switch {
	case v <= VerboseNone:
		return 0, false
	case v <= VerboseError:
		return slog.LevelError, true
	case v == VerboseWarning:
		return slog.LevelWarn, true
	case v == VerboseDebug1:
		return slog.LevelInfo, true
	case v == VerboseDebug2:
		return slog.LevelDebug, true
	default:
		return LevelTrace, true
	}
}

// newLogger builds a text logger writing to w (stderr when nil) at the level
// implied by v. VerboseNone yields a logger that discards everything.
func newLogger(v VerboseLevel, w io.Writer) *slog.Logger {
	level, ok := SlogLevel(v)
	if !ok {
		return slog.New(slog.DiscardHandler)
	}
	if w == nil {
		w = os.Stderr
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// tracing reports whether per-operation trace messages would be emitted.
// Hot paths check it first so that disabled tracing costs no allocations.
func tracing(l *slog.Logger) bool {
	return l.Enabled(context.Background(), LevelTrace)
}
