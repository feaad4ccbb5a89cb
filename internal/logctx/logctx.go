// Package logctx wraps logiface + logiface-slog behind a single
// non-generic Logger type so the rest of this module never has to spell
// out logiface's generic Event parameter. Grounded directly on the
// teacher's logiface-slog/logger.go NewLogger constructor.
package logctx

import (
	"log/slog"
	"os"

	"github.com/joeycumines/logiface"
	logifaceslog "github.com/joeycumines/logiface-slog"
)

// Logger is the structured logger type threaded through the components
// that log (dispatch, durability, adminproto, cmd/cachecored), carrying
// structured fields such as `slab_class`.
type Logger = *logiface.Logger[*logifaceslog.Event]

// New builds a Logger that writes to handler via logiface-slog.
func New(handler slog.Handler, options ...logiface.Option[*logifaceslog.Event]) Logger {
	opts := make([]logiface.Option[*logifaceslog.Event], 0, len(options)+1)
	opts = append(opts, logifaceslog.NewLogger(handler))
	opts = append(opts, options...)
	return logiface.New[*logifaceslog.Event](opts...)
}

// NewDiscard builds a Logger that drops every event, used by components
// and tests that accept an optional *Logger without requiring a sink.
func NewDiscard() Logger {
	return New(slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 100}))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// Fatal logs msg at the highest severity then terminates the process,
// matching spec.md §7's policy for startup failures: "emit diagnostic to
// stderr and terminate".
func Fatal(l Logger, msg string) {
	if l != nil {
		l.Emerg().Log(msg)
	}
	os.Exit(1)
}
