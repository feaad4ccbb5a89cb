package logctx

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestNewWritesThroughToHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := New(slog.NewTextHandler(&buf, nil))

	logger.Notice().Str("addr", "127.0.0.1:11311").Log("cachecored: listening")

	out := buf.String()
	if !strings.Contains(out, "cachecored: listening") {
		t.Fatalf("handler output %q missing the logged message", out)
	}
	if !strings.Contains(out, "127.0.0.1:11311") {
		t.Fatalf("handler output %q missing the structured field", out)
	}
}

func TestNewWithErrField(t *testing.T) {
	var buf bytes.Buffer
	logger := New(slog.NewTextHandler(&buf, nil))

	logger.Err().Err(errors.New("boom")).Log("durability: snapshot cycle failed")

	out := buf.String()
	if !strings.Contains(out, "boom") {
		t.Fatalf("handler output %q missing the error field", out)
	}
}

func TestNewDiscardProducesNoOutput(t *testing.T) {
	logger := NewDiscard()
	// Must not panic, and since NewDiscard wires a sink level above Emerg,
	// nothing should reach any visible destination.
	logger.Notice().Log("should be discarded")
	logger.Warning().Err(errors.New("x")).Log("should also be discarded")
}
