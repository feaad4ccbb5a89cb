package durability

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/joeycumines/cachecore/internal/item"
	"github.com/joeycumines/cachecore/internal/logctx"
	"github.com/joeycumines/cachecore/internal/statsd"
)

func TestWriterSubmitThenRotateMovesRecordToSnapshotBefore(t *testing.T) {
	dir := t.TempDir()
	arena := NewRecordArena(0)
	stats := &statsd.Global{}
	w := NewWriter(dir, 0, arena, stats, logctx.NewDiscard())
	defer w.Close()

	ctx := context.Background()
	im, err := item.NewLinked([]byte("hello"), []byte("world"), 0, 0, 1)
	if err != nil {
		t.Fatalf("NewLinked: %v", err)
	}
	if err := w.Submit(ctx, im); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := w.Rotate(ctx); err != nil {
		t.Fatalf("Rotate: %v", err)
	}

	before := snapshotBeforePath(dir, 0)
	data, err := os.ReadFile(before)
	if err != nil {
		t.Fatalf("reading %s: %v", before, err)
	}
	got, used, err := item.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if used != len(data) {
		t.Fatalf("expected exactly one record, decoded %d of %d bytes", used, len(data))
	}
	if string(got.Key) != "hello" || string(got.Value) != "world" {
		t.Fatalf("round-tripped record mismatch: %+v", got)
	}

	if _, err := os.Stat(logPath(dir, 0)); err != nil {
		t.Fatalf("expected a fresh log file after rotate: %v", err)
	}

	if err := w.Done(ctx); err != nil {
		t.Fatalf("Done: %v", err)
	}
	if _, err := os.Stat(before); !os.IsNotExist(err) {
		t.Fatalf("Done must remove the pre-rotation tail, stat err = %v", err)
	}
}

func TestWriterSubmitOrderIsPreservedAcrossRotate(t *testing.T) {
	dir := t.TempDir()
	arena := NewRecordArena(0)
	w := NewWriter(dir, 0, arena, &statsd.Global{}, logctx.NewDiscard())
	defer w.Close()

	ctx := context.Background()
	keys := []string{"a", "b", "c"}
	for _, k := range keys {
		im, err := item.NewLinked([]byte(k), nil, 0, 0, 1)
		if err != nil {
			t.Fatalf("NewLinked(%s): %v", k, err)
		}
		if err := w.Submit(ctx, im); err != nil {
			t.Fatalf("Submit(%s): %v", k, err)
		}
	}
	if err := w.Rotate(ctx); err != nil {
		t.Fatalf("Rotate: %v", err)
	}

	data, err := os.ReadFile(snapshotBeforePath(dir, 0))
	if err != nil {
		t.Fatalf("reading snapshot_before: %v", err)
	}
	var gotKeys []string
	for len(data) > 0 {
		im, used, err := item.Decode(data)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		gotKeys = append(gotKeys, string(im.Key))
		data = data[used:]
	}
	if len(gotKeys) != len(keys) {
		t.Fatalf("expected %d records, got %d", len(keys), len(gotKeys))
	}
	for i, k := range keys {
		if gotKeys[i] != k {
			t.Fatalf("submission order not preserved: want %v, got %v", keys, gotKeys)
		}
	}
}

func TestWriterOpenFailureIsNonFatal(t *testing.T) {
	// A directory that does not exist: OpenFile fails, but NewWriter must
	// not panic, and Submit must simply drop the record (spec.md §7: no
	// file handle means every append silently discards).
	dir := filepath.Join(t.TempDir(), "does-not-exist")
	arena := NewRecordArena(0)
	w := NewWriter(dir, 0, arena, &statsd.Global{}, logctx.NewDiscard())
	defer w.Close()

	im, err := item.NewLinked([]byte("k"), []byte("v"), 0, 0, 1)
	if err != nil {
		t.Fatalf("NewLinked: %v", err)
	}
	if err := w.Submit(context.Background(), im); err != nil {
		t.Fatalf("Submit must not error even without an open file: %v", err)
	}
	if err := w.Rotate(context.Background()); err != nil {
		t.Fatalf("Rotate must not error: %v", err)
	}
}
